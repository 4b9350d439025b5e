package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// conn wraps a single *goldap.Conn with the id used for log correlation.
// The epoch a connection belongs to is tracked by the pool that owns it
// (Pool.epoch), not on conn itself.
type conn struct {
	id   string
	ldap *goldap.Conn
}

// dial opens a new LDAP connection to server, honoring use_starttls,
// ca_cert_path, tls_cert_path/tls_key_path and the connect timeout (spec
// §4.D step "Checkout a connection", §6 timeout_connection). It never
// touches the pool.
func dial(server *Server, cs ConnectionSettings) (*conn, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}

	opts := []goldap.DialOpt{goldap.DialWithDialer(&net.Dialer{Timeout: cs.ConnectTimeout})}

	requiresTLS := server.RequiresTLS(cs.UseStartTLS)

	var tlsConfig *tls.Config
	if requiresTLS {
		cfg, err := buildTLSConfig(cs)
		if err != nil {
			return nil, err
		}

		tlsConfig = cfg

		if server.URL.Scheme == "ldaps" {
			opts = append(opts, goldap.DialWithTLSConfig(tlsConfig))
		}
	}

	c, err := goldap.DialURL(server.URL.String(), opts...)
	if err != nil {
		return nil, Wrap(KindLdapConnection, "failed to dial "+server.URL.String(), err)
	}

	if requiresTLS && server.URL.Scheme != "ldaps" {
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Close()

			return nil, Wrap(KindLdapConnection, "starttls failed against "+server.URL.String(), err)
		}
	}

	if cs.OperationTimeout > 0 {
		c.SetTimeout(cs.OperationTimeout)
	}

	return &conn{id: uuid.NewString(), ldap: c}, nil
}

func buildTLSConfig(cs ConnectionSettings) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec // directory operator controls CA/cert bundle

	if cs.CACertPath != "" {
		pemBytes, err := os.ReadFile(cs.CACertPath)
		if err != nil {
			return nil, Wrap(KindIO, "failed to read CA cert file", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, New(KindTLS, "failed to parse CA certificate")
		}

		tlsConfig.RootCAs = pool
	}

	if cs.ClientCertPath != "" {
		if cs.ClientKeyPath == "" {
			return nil, New(KindNoTLSKeyPathSet, "")
		}

		cert, err := tls.LoadX509KeyPair(cs.ClientCertPath, cs.ClientKeyPath)
		if err != nil {
			return nil, Wrap(KindTLS, "failed to load client certificate", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// bind performs a simple_bind of dn/password (spec §4.D step 3 of bind,
// step 5 of search+bind).
func (c *conn) bind(dn, password string) error {
	if err := c.ldap.Bind(dn, password); err != nil {
		return classifyLDAPCall(err, KindLdapConnection, KindLdapBind)
	}

	return nil
}

// adminBind performs the optional admin simple_bind ahead of a search
// (spec §4.D step 2). Its error is always AdminBindError regardless of
// cause classification, per spec: "failure is an AdminBindError (surfaced,
// not retried)".
func (c *conn) adminBind(dn, password string) error {
	if err := c.ldap.Bind(dn, password); err != nil {
		return Wrap(KindLdapAdminBind, "", err)
	}

	return nil
}

// search runs the search+bind directory lookup (spec §4.D steps 3-4) and
// returns the single matching entry's DN attribute value.
func (c *conn) search(settings Settings, username string) (string, error) {
	filter := fmt.Sprintf("(&(%s)(%s=%s))", settings.effectiveFilter(), settings.effectiveAttribute(), goldap.EscapeFilter(username))

	req := goldap.NewSearchRequest(
		settings.SearchBase,
		scopeToGoLDAP(settings.SearchScope),
		goldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{settings.effectiveDNAttribute()},
		nil,
	)

	res, err := c.ldap.Search(req)
	if err != nil {
		return "", classifyLDAPCall(err, KindLdapConnection, KindLdapSearch)
	}

	switch len(res.Entries) {
	case 0:
		return "", New(KindNoLdapEntryFound, filter)
	default:
		if len(res.Entries) > 1 {
			return "", New(KindMultipleEntryFound, filter)
		}
	}

	entry := res.Entries[0]
	dnAttr := settings.effectiveDNAttribute()
	values := entry.GetAttributeValues(dnAttr)

	if len(values) == 0 {
		return "", New(KindInvalidDNAttribute, dnAttr)
	}

	return values[0], nil
}

// whoAmI is the lightweight, non-mutating probe operation the failure
// detector uses against an in-pool connection (spec §4.E step 3).
func (c *conn) whoAmI() error {
	if _, err := c.ldap.WhoAmI(nil); err != nil {
		return classifyLDAPCall(err, KindLdapServerPing, KindLdapServerPing)
	}

	return nil
}

// close unbinds and releases the underlying connection. Idempotent per
// spec §3's Connection invariant.
func (c *conn) close() {
	if c.ldap == nil {
		return
	}

	_ = c.ldap.Unbind()
	_ = c.ldap.Close()
	c.ldap = nil
}

func scopeToGoLDAP(s SearchScope) int {
	switch s {
	case ScopeBase:
		return goldap.ScopeBaseObject
	case ScopeOneLevel:
		return goldap.ScopeSingleLevel
	default:
		return goldap.ScopeWholeSubtree
	}
}

// parseServerURL validates a configured server URL the way spec §4.A's
// set_servers requires: scheme must be ldap or ldaps.
func parseServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, Wrap(KindIO, "invalid server URL "+raw, err)
	}

	if u.Scheme != "ldap" && u.Scheme != "ldaps" {
		return nil, New(KindIO, "server URL must use ldap:// or ldaps://, got "+raw)
	}

	return u, nil
}
