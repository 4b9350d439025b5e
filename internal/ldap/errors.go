package ldap

import (
	"errors"
	"fmt"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
)

// ErrorKind identifies one entry of the error taxonomy described in the
// design: every failure the core can produce is classified into exactly
// one kind, which in turn decides whether the orchestrator's failover loop
// recovers from it or surfaces it to the caller.
type ErrorKind int

const (
	// KindIO wraps a filesystem error (e.g. reading a TLS cert/key file).
	KindIO ErrorKind = iota
	// KindNoTLSKeyPathSet is returned when tls_cert_path is set without a
	// matching tls_key_path.
	KindNoTLSKeyPathSet
	// KindTLS wraps a TLS configuration or handshake error.
	KindTLS
	// KindLdapBind wraps a failed simple_bind of the end-user DN.
	KindLdapBind
	// KindLdapAdminBind wraps a failed simple_bind of the search admin DN.
	KindLdapAdminBind
	// KindLdapSearch wraps a failed directory search.
	KindLdapSearch
	// KindLdapConnection wraps a transport-level failure: dial, TLS
	// handshake, timeout, unexpected EOF. Connection-class.
	KindLdapConnection
	// KindLdapServerPing wraps a failed failure-detector probe.
	// Connection-class.
	KindLdapServerPing
	// KindNoLdapEntryFound means a search+bind filter matched zero entries.
	KindNoLdapEntryFound
	// KindMultipleEntryFound means a search+bind filter matched more than
	// one entry.
	KindMultipleEntryFound
	// KindInvalidDNAttribute means the matched entry had no value for the
	// configured DN attribute.
	KindInvalidDNAttribute
	// KindNoServerConfigured means the registry has no servers at all.
	KindNoServerConfigured
	// KindNoHealthyServerAvailable means every configured server is
	// currently UNHEALTHY.
	KindNoHealthyServerAvailable
	// KindFailedToStopFailureDetector means the failure detector's job
	// scheduler did not shut down cleanly. Detector.Start also reports a
	// failure to create that scheduler or to schedule its probe job under
	// this kind.
	KindFailedToStopFailureDetector
	// KindFailedToShutdownScheduler means the scheduler worker goroutine
	// did not exit cleanly.
	KindFailedToShutdownScheduler
	// KindFailedToSendJob means a task was submitted after the scheduler
	// had already shut down.
	KindFailedToSendJob
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindNoTLSKeyPathSet:
		return "NoTLSKeyPathSet"
	case KindTLS:
		return "TLS"
	case KindLdapBind:
		return "LdapBind"
	case KindLdapAdminBind:
		return "LdapAdminBind"
	case KindLdapSearch:
		return "LdapSearch"
	case KindLdapConnection:
		return "LdapConnection"
	case KindLdapServerPing:
		return "LdapServerPing"
	case KindNoLdapEntryFound:
		return "NoLdapEntryFound"
	case KindMultipleEntryFound:
		return "MultipleEntryFound"
	case KindInvalidDNAttribute:
		return "InvalidDNAttribute"
	case KindNoServerConfigured:
		return "NoServerConfigured"
	case KindNoHealthyServerAvailable:
		return "NoHealthyServerAvailable"
	case KindFailedToStopFailureDetector:
		return "FailedToStopFailureDetectorThread"
	case KindFailedToShutdownScheduler:
		return "FailedToShutdownJobScheduler"
	case KindFailedToSendJob:
		return "FailedToSendJobToScheduler"
	default:
		return "Unknown"
	}
}

// IsConnectionClass reports whether this kind is recovered by the
// orchestrator's failover loop (spec §4.D, §7) rather than surfaced as a
// terminal result.
func (k ErrorKind) IsConnectionClass() bool {
	switch k {
	case KindLdapConnection, KindLdapServerPing:
		return true
	default:
		return false
	}
}

// Error is the single error type used across the core. It always carries a
// Kind from the taxonomy above, an optional detail string, and an optional
// wrapped cause.
type Error struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	msg := errorMessage(e.Kind, e.Detail)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", msg, sanitizeLDAPMessage(e.Cause.Error()))
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func errorMessage(kind ErrorKind, detail string) string {
	switch kind {
	case KindNoTLSKeyPathSet:
		return "no TLS key path specified; set tls_key_path"
	case KindLdapBind:
		return "error in bind operation"
	case KindLdapAdminBind:
		return "error binding admin user"
	case KindLdapSearch:
		return "failed to search ldap user"
	case KindLdapConnection:
		return "failed to establish an LDAP connection"
	case KindLdapServerPing:
		return "failed to probe LDAP server"
	case KindNoLdapEntryFound:
		return fmt.Sprintf("search filter %q returned no entries", detail)
	case KindMultipleEntryFound:
		return fmt.Sprintf("search filter %q returned multiple entries", detail)
	case KindInvalidDNAttribute:
		return fmt.Sprintf("entry is missing DN attribute %q", detail)
	case KindNoServerConfigured:
		return "no server set in configuration; set the servers config option"
	case KindNoHealthyServerAvailable:
		return "all configured servers are unhealthy; check the logs for details"
	case KindFailedToStopFailureDetector:
		return "failed to wait for the failure detector thread to finish"
	case KindFailedToShutdownScheduler:
		return "failed to shut down the job scheduler"
	case KindFailedToSendJob:
		return fmt.Sprintf("failed to send job to scheduler: %s", detail)
	case KindIO:
		return detail
	case KindTLS:
		return detail
	default:
		return "ldap error"
	}
}

// New builds an *Error with no wrapped cause.
func New(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error around a lower-level cause.
func Wrap(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// KindOf extracts the ErrorKind of err, if err is (or wraps) an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

// IsConnectionClass reports whether err should drive the failover loop.
func IsConnectionClass(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.IsConnectionClass()
}

// classifyLDAPCall turns the result of a go-ldap call into our taxonomy.
// A *goldap.Error is a well-formed protocol response (e.g. invalid
// credentials): never connection-class - except for go-ldap's ErrorNetwork
// code, which it uses for transport failures on an open connection.
// Anything else - dial failures, TLS handshake errors, timeouts, unexpected
// EOF - is connection-class.
func classifyLDAPCall(err error, connClassKind, protocolKind ErrorKind) *Error {
	if err == nil {
		return nil
	}

	var ldapErr *goldap.Error
	if errors.As(err, &ldapErr) && ldapErr.ResultCode != goldap.ErrorNetwork {
		return Wrap(protocolKind, "", err)
	}

	return Wrap(connClassKind, "", err)
}

// sanitizeLDAPMessage strips embedded NUL bytes that some Active Directory
// servers include in error strings, which would otherwise panic naive
// display/formatting code.
func sanitizeLDAPMessage(msg string) string {
	if !strings.ContainsRune(msg, 0) {
		return msg
	}

	return strings.ReplaceAll(msg, "\x00", "")
}
