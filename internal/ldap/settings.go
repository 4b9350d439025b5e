package ldap

import "time"

// SearchScope mirrors the three LDAP search scopes the configuration
// surface accepts (spec §6 search_scope).
type SearchScope int

const (
	ScopeBase SearchScope = iota
	ScopeOneLevel
	ScopeSubTree
)

// ParseSearchScope parses the configuration string form of a scope.
func ParseSearchScope(s string) (SearchScope, error) {
	switch s {
	case "base":
		return ScopeBase, nil
	case "one":
		return ScopeOneLevel, nil
	case "sub", "":
		return ScopeSubTree, nil
	default:
		return 0, New(KindIO, "invalid search scope "+s)
	}
}

// Settings is the immutable LDAP-behavior snapshot described in spec §3.
// It is cloned into every task at submission time (spec §9's "live-settings
// pattern") so a task never observes a setting change mid-flight.
type Settings struct {
	BindDNPrefix string
	BindDNSuffix string

	SearchBase       string // empty means unset
	SearchScope      SearchScope
	SearchFilter     string // empty -> defaults to "objectClass=*" at use time
	SearchAttribute  string // empty -> defaults to "uid" at use time
	SearchBindDN     string // empty means unset (no admin bind)
	SearchBindPasswd string // empty means unset
	DNAttribute      string // defaults to "entryDN"
}

// DefaultSettings returns the zero-value settings with the defaults spec §3
// and §6 specify for fields that fall back when unset.
func DefaultSettings() Settings {
	return Settings{
		SearchScope: ScopeSubTree,
		DNAttribute: "entryDN",
	}
}

func (s Settings) effectiveFilter() string {
	if s.SearchFilter == "" {
		return "objectClass=*"
	}

	return s.SearchFilter
}

func (s Settings) effectiveAttribute() string {
	if s.SearchAttribute == "" {
		return "uid"
	}

	return s.SearchAttribute
}

func (s Settings) effectiveDNAttribute() string {
	if s.DNAttribute == "" {
		return "entryDN"
	}

	return s.DNAttribute
}

func (s Settings) hasAdminBind() bool {
	return s.SearchBindDN != "" && s.SearchBindPasswd != ""
}

func (s Settings) userDN(username string) string {
	return s.BindDNPrefix + username + s.BindDNSuffix
}

// ConnectionSettings is the immutable connection-behavior snapshot
// described in spec §3.
type ConnectionSettings struct {
	UseStartTLS    bool
	CACertPath     string // empty means unset
	ClientCertPath string // empty means unset
	ClientKeyPath  string // empty means unset

	PoolSize int // >= 1

	ConnectTimeout   time.Duration // 0 means unbounded
	OperationTimeout time.Duration // 0 means unbounded
}

// DefaultConnectionSettings matches the spec §6 configuration defaults.
func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		PoolSize:         2,
		ConnectTimeout:   10 * time.Second,
		OperationTimeout: 10 * time.Second,
	}
}

// Validate enforces the invariant from spec §3: a client cert without a
// matching client key is an error raised at use time, not at set time -
// callers that want this at connection time should call it from conn.go
// instead of from the config layer.
func (c ConnectionSettings) Validate() error {
	if c.ClientCertPath != "" && c.ClientKeyPath == "" {
		return New(KindNoTLSKeyPathSet, "")
	}

	return nil
}
