package ldap

import (
	"net/url"
	"time"
)

// Status is a server's health as described in spec §3: either healthy, or
// unhealthy with the message that caused the transition.
type Status struct {
	Healthy bool
	Message string // only meaningful when Healthy is false
}

// HealthyStatus is the zero-cost constructor for the healthy state.
func HealthyStatus() Status {
	return Status{Healthy: true}
}

// UnhealthyStatus builds the unhealthy state carrying a diagnostic message.
func UnhealthyStatus(message string) Status {
	return Status{Healthy: false, Message: message}
}

func (s Status) String() string {
	if s.Healthy {
		return "healthy"
	}

	return "unhealthy: " + s.Message
}

// Equal compares status by discriminant only, matching the Rust source's
// PartialEq impl (VkLdapServerStatus compares HEALTHY/UNHEALTHY, not the
// message) - used to decide whether a transition is log-worthy.
func (s Status) Equal(other Status) bool {
	return s.Healthy == other.Healthy
}

// Server is one entry of the registry (spec §3). Index is a stable
// positional identity assigned at insertion and never reassigned for the
// life of this server entry; it is only ever invalidated wholesale by a new
// set_servers call, which discards every previous Server and pool.
type Server struct {
	Index    int
	URL      *url.URL
	status   Status
	pingTime *time.Duration // nil until the first probe completes
}

func newServer(index int, u *url.URL) *Server {
	return &Server{Index: index, URL: u, status: HealthyStatus()}
}

// HostString renders the server the way the status command reports it:
// the URL's host[:port], falling back to the full URL if it has none.
func (s *Server) HostString() string {
	if s.URL.Host != "" {
		return s.URL.Host
	}

	return s.URL.String()
}

// IsHealthy reports the server's current health.
func (s *Server) IsHealthy() bool {
	return s.status.Healthy
}

// GetStatus returns a copy of the server's current status.
func (s *Server) GetStatus() Status {
	return s.status
}

// PingTime returns the last measured probe round-trip, if any.
func (s *Server) PingTime() (time.Duration, bool) {
	if s.pingTime == nil {
		return 0, false
	}

	return *s.pingTime, true
}

// RequiresTLS reports whether this server's scheme or the live connection
// settings require a TLS (or StartTLS) handshake.
func (s *Server) RequiresTLS(useStartTLS bool) bool {
	return s.URL.Scheme == "ldaps" || useStartTLS
}

// Clone returns a value copy safe to hand to a reader outside the registry
// lock (spec §4.A snapshot_servers).
func (s *Server) Clone() *Server {
	cp := *s
	if s.pingTime != nil {
		pt := *s.pingTime
		cp.pingTime = &pt
	}

	return &cp
}
