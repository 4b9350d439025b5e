// Package host describes the boundary between this module's core
// (internal/ldap) and the key-value server it is loaded into (spec §6).
// It is deliberately abstract: nothing in this package talks to a real
// server process, so the core can be exercised against the in-memory
// Host in mock.go in tests and in cmd/ldapauth-demo.
package host

// AuthVerdict is the result the host's auth callback reports back to its
// own command-processing thread after the core completes a bind attempt.
type AuthVerdict int

const (
	// VerdictHandled means the bind succeeded and the client was promoted
	// to an ACL identity.
	VerdictHandled AuthVerdict = iota
	// VerdictHandledPending means the core accepted the request and will
	// report a result asynchronously via BlockedClientToken.
	VerdictHandledPending
	// VerdictNotHandled means either auth is disabled, or the bind failed
	// in a way that should let other auth providers try (non-authoritative
	// rejection, spec §7).
	VerdictNotHandled
	// VerdictError means a configuration or internal error prevented the
	// core from even attempting a bind.
	VerdictError
)

func (v AuthVerdict) String() string {
	switch v {
	case VerdictHandled:
		return "HANDLED"
	case VerdictHandledPending:
		return "HANDLED_PENDING"
	case VerdictNotHandled:
		return "NOT_HANDLED"
	case VerdictError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// BlockedClientToken is the host's handle for a client that has suspended
// its command pipeline pending the core's asynchronous bind result (spec
// §6 "blocked-client token"). The core calls Reply exactly once, from the
// scheduler worker, when the bind attempt completes.
type BlockedClientToken interface {
	// Reply hands the final outcome back to the host. Authenticate calls it
	// after it has already attempted the ACL promotion and written its log
	// line: err == nil means the bind succeeded and the client was promoted
	// to username, so the host unblocks it with VerdictHandled. A non-nil err
	// is either the bind error or the promotion error; the host unblocks the
	// client with VerdictNotHandled, per spec §7's non-authoritative
	// rejection principle.
	Reply(username string, err error)
}

// ServerHealth is one entry of the ldap.status command's Servers_Health
// mapping (spec §6).
type ServerHealth struct {
	Host    string
	Healthy bool
	Message string
}

// Host is the subset of the module SDK the core needs: promoting a blocked
// client to an ACL user, and the host's own log facility.
// A real loadable module implements this against the server's actual SDK;
// cmd/ldapauth-demo wires it against the in-memory Host in mock.go.
type Host interface {
	// PromoteToACLUser instructs the host to treat the currently blocked
	// client as the named, policy-governed ACL user (spec GLOSSARY "ACL
	// promotion").
	PromoteToACLUser(token BlockedClientToken, username string) error

	// LogInfo and LogWarn record a structured log line the way the host's
	// own logging facility would, so the core's log calls have somewhere
	// to go even outside a real server process.
	LogInfo(msg string, fields map[string]any)
	LogWarn(msg string, fields map[string]any)
}
