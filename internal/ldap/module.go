package ldap

import (
	"context"
	"sync"
	"time"
)

// AuthMode selects which authentication flow Auth runs (spec §6 auth_mode).
type AuthMode int

const (
	// AuthModeBind authenticates with a direct simple bind of
	// bind_dn_prefix + username + bind_dn_suffix.
	AuthModeBind AuthMode = iota
	// AuthModeSearchAndBind authenticates by resolving the user's DN via a
	// directory search, then binding as that DN.
	AuthModeSearchAndBind
)

// ParseAuthMode parses the configuration string form of an auth mode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "bind":
		return AuthModeBind, nil
	case "search+bind", "search_and_bind":
		return AuthModeSearchAndBind, nil
	default:
		return 0, New(KindIO, "invalid auth mode "+s)
	}
}

// InitOptions is everything Module.Init needs to stand up the core. It is
// a plain struct rather than the configuration package's type so this
// package has no dependency on how configuration is loaded.
type InitOptions struct {
	Servers            []string
	Settings           Settings
	ConnectionSettings ConnectionSettings

	AuthMode    AuthMode
	AuthEnabled bool

	// FailureDetectorInterval <= 0 disables the background detector.
	FailureDetectorInterval time.Duration
}

// Module wires the registry, scheduler, orchestrator, and failure detector
// together behind the external entry points described in spec §6: Init,
// Deinit, Auth, and the live config-refresh operations.
type Module struct {
	mu sync.RWMutex

	registry     *Registry
	scheduler    *Scheduler
	orchestrator *Orchestrator
	detector     *Detector

	authMode    AuthMode
	authEnabled bool

	// shutdownWG tracks pool-shutdown goroutines detached by the registry
	// on SetServers/ClearServers, so Deinit can wait for them instead of
	// returning while old connections are still draining.
	shutdownWG sync.WaitGroup
}

// NewModule builds an uninitialized Module.
func NewModule() *Module {
	return &Module{}
}

// Init starts the scheduler and failure detector and populates the
// registry with opts' servers and settings.
func (m *Module) Init(opts InitOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry = NewRegistry(opts.Settings, opts.ConnectionSettings)
	m.orchestrator = NewOrchestrator(m.registry)
	m.authMode = opts.AuthMode
	m.authEnabled = opts.AuthEnabled

	m.scheduler = NewScheduler()
	m.scheduler.Start()

	if err := m.registry.SetServers(opts.Servers, &m.shutdownWG); err != nil {
		return err
	}

	if opts.FailureDetectorInterval > 0 {
		m.detector = NewDetector(m.registry, opts.FailureDetectorInterval)
		if err := m.detector.Start(); err != nil {
			return err
		}
	}

	return nil
}

// Deinit stops the failure detector and scheduler and waits for every
// server pool to finish draining before returning.
func (m *Module) Deinit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error

	if m.detector != nil {
		if err := m.detector.Stop(); err != nil {
			firstErr = err
		}
	}

	if m.scheduler != nil {
		if err := m.scheduler.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if m.registry != nil {
		m.registry.ClearServers(&m.shutdownWG)
	}

	m.shutdownWG.Wait()

	return firstErr
}

// Auth is the external entry point the host's blocking auth callback
// submits onto the scheduler (spec §5, §6). It returns nil on success, or
// the terminal *Error the configured auth flow produced (invalid
// credentials, no healthy server, etc).
func (m *Module) Auth(username, password string) error {
	m.mu.RLock()
	enabled := m.authEnabled
	scheduler := m.scheduler
	orchestrator := m.orchestrator
	mode := m.authMode
	m.mu.RUnlock()

	if !enabled {
		return nil
	}

	result, err := SubmitSync(scheduler, func() error {
		ctx := context.Background()

		if mode == AuthModeSearchAndBind {
			return orchestrator.SearchAndBind(ctx, username, password)
		}

		return orchestrator.Bind(ctx, username, password)
	})
	if err != nil {
		return err
	}

	return result
}

// AuthAsync is the external entry point the host's blocking auth callback
// submits onto the scheduler when it wants to return immediately instead of
// blocking its own command thread (spec §4.C, §6): the scheduler dispatches
// the configured auth flow on its own goroutine and invokes callback with
// the result once it completes. AuthAsync itself returns as soon as the job
// has been handed to the scheduler, or immediately with false if auth is
// disabled or the job could not be submitted - in both cases callback is
// never invoked, and the caller is responsible for producing its own
// synchronous verdict.
func (m *Module) AuthAsync(username, password string, callback func(error)) bool {
	m.mu.RLock()
	enabled := m.authEnabled
	scheduler := m.scheduler
	orchestrator := m.orchestrator
	mode := m.authMode
	m.mu.RUnlock()

	if !enabled {
		return false
	}

	err := SubmitAsync(scheduler, func() error {
		ctx := context.Background()

		if mode == AuthModeSearchAndBind {
			return orchestrator.SearchAndBind(ctx, username, password)
		}

		return orchestrator.Bind(ctx, username, password)
	}, func(_ struct{}, authErr error) {
		callback(authErr)
	}, struct{}{})

	return err == nil
}

// SetServers replaces the configured server list (spec §4.A set_servers).
func (m *Module) SetServers(urls []string) error {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()

	return registry.SetServers(urls, &m.shutdownWG)
}

// ClearServers empties the configured server list (spec §4.A
// clear_servers).
func (m *Module) ClearServers() {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()

	registry.ClearServers(&m.shutdownWG)
}

// RefreshLdapSettings swaps in a new LDAP-behavior snapshot.
func (m *Module) RefreshLdapSettings(settings Settings) {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()

	registry.RefreshLdapSettings(settings)
}

// RefreshConnectionSettings swaps in a new connection-behavior snapshot
// and refreshes every server's pool against it.
func (m *Module) RefreshConnectionSettings(connSettings ConnectionSettings) {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()

	registry.RefreshConnectionSettings(connSettings)
}

// AuthEnabled reports whether Auth currently runs the configured flow, so
// a caller can distinguish "auth disabled" from "auth ran and succeeded"
// (spec §6: disabled auth returns NOT_HANDLED, not a verdict on
// credentials).
func (m *Module) AuthEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.authEnabled
}

// SetAuthEnabled toggles whether Auth actually runs the configured flow.
func (m *Module) SetAuthEnabled(enabled bool) {
	m.mu.Lock()
	m.authEnabled = enabled
	m.mu.Unlock()
}

// SetAuthMode changes which flow Auth runs.
func (m *Module) SetAuthMode(mode AuthMode) {
	m.mu.Lock()
	m.authMode = mode
	m.mu.Unlock()
}

// ServerStatusReport is one server's entry in Status's output.
type ServerStatusReport struct {
	Host        string
	Healthy     bool
	Message     string
	PingTime    time.Duration
	HasPingTime bool
}

// Status reports the current health of every configured server (spec §6
// status command / INFO surface).
func (m *Module) Status() []ServerStatusReport {
	m.mu.RLock()
	registry := m.registry
	m.mu.RUnlock()

	servers, _ := registry.SnapshotServers()
	out := make([]ServerStatusReport, 0, len(servers))

	for _, s := range servers {
		pingTime, hasPing := s.PingTime()

		out = append(out, ServerStatusReport{
			Host:        s.HostString(),
			Healthy:     s.IsHealthy(),
			Message:     s.GetStatus().Message,
			PingTime:    pingTime,
			HasPingTime: hasPing,
		})
	}

	return out
}
