package host

import "sync"

// Authenticator is the subset of ldap.Module the host boundary needs:
// whether auth currently runs, and the non-blocking bind entry point.
// Kept as an interface so this package never imports internal/ldap.
type Authenticator interface {
	AuthEnabled() bool
	// AuthAsync submits the bind attempt to the core's own scheduler and
	// returns immediately; callback runs once the attempt completes. It
	// reports false (and never invokes callback) if auth is disabled or
	// the job could not be submitted.
	AuthAsync(username, password string, callback func(error)) bool
}

// Authenticate implements the spec §6 auth callback contract against any
// Host/Authenticator pair: if auth is disabled, it returns NOT_HANDLED
// synchronously. Otherwise it hands the bind attempt to the core's
// scheduler, which is the component responsible for decoupling it from
// this call, and returns HANDLED_PENDING immediately the way a real
// command thread expects; callback replies to token once the scheduler
// finishes the attempt.
func Authenticate(h Host, a Authenticator, token BlockedClientToken, username, password string) AuthVerdict {
	if !a.AuthEnabled() {
		return VerdictNotHandled
	}

	submitted := a.AuthAsync(username, password, func(err error) {
		if err != nil {
			h.LogWarn("ldap bind not handled", map[string]any{"user": username, "error": err.Error()})
			token.Reply(username, err)

			return
		}

		if promErr := h.PromoteToACLUser(token, username); promErr != nil {
			h.LogWarn("acl promotion failed", map[string]any{"user": username, "error": promErr.Error()})
			token.Reply(username, promErr)

			return
		}

		h.LogInfo("ldap bind succeeded", map[string]any{"user": username})
		token.Reply(username, nil)
	})
	if !submitted {
		return VerdictNotHandled
	}

	return VerdictHandledPending
}

// MockToken is a BlockedClientToken used in tests and the demo binary. It
// lets calling code block until Reply has been called exactly once.
type MockToken struct {
	done sync.Once
	wait chan struct{}

	Username string
	Err      error
}

// NewMockToken builds a ready-to-use token.
func NewMockToken() *MockToken {
	return &MockToken{wait: make(chan struct{})}
}

// Reply implements BlockedClientToken.
func (t *MockToken) Reply(username string, err error) {
	t.done.Do(func() {
		t.Username = username
		t.Err = err
		close(t.wait)
	})
}

// Wait blocks until Reply has been called.
func (t *MockToken) Wait() {
	<-t.wait
}

// MockHost is an in-memory reference Host implementation, used by this
// package's tests and cmd/ldapauth-demo in place of a real server process.
type MockHost struct {
	mu       sync.Mutex
	promoted map[string]bool
	infos    []logEntry
	warns    []logEntry
}

type logEntry struct {
	Msg    string
	Fields map[string]any
}

// NewMockHost builds an empty MockHost.
func NewMockHost() *MockHost {
	return &MockHost{promoted: make(map[string]bool)}
}

// PromoteToACLUser implements Host.
func (h *MockHost) PromoteToACLUser(_ BlockedClientToken, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.promoted[username] = true

	return nil
}

// IsPromoted reports whether username was ever promoted.
func (h *MockHost) IsPromoted(username string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.promoted[username]
}

// LogInfo implements Host.
func (h *MockHost) LogInfo(msg string, fields map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.infos = append(h.infos, logEntry{Msg: msg, Fields: fields})
}

// LogWarn implements Host.
func (h *MockHost) LogWarn(msg string, fields map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.warns = append(h.warns, logEntry{Msg: msg, Fields: fields})
}

// InfoLogs returns a defensive copy of every LogInfo call recorded so far.
func (h *MockHost) InfoLogs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, len(h.infos))
	for i, e := range h.infos {
		out[i] = e.Msg
	}

	return out
}

// WarnLogs returns a defensive copy of every LogWarn call recorded so far.
func (h *MockHost) WarnLogs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, len(h.warns))
	for i, e := range h.warns {
		out[i] = e.Msg
	}

	return out
}
