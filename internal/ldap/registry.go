package ldap

import (
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// serverEntry pairs a Server with its dedicated connection pool. The
// registry owns both and keeps them aligned by index.
type serverEntry struct {
	server *Server
	pool   *Pool
}

// Registry is the server registry and settings store (component A): it
// owns the set of configured servers, each one's dedicated pool, and the
// live LdapSettings/ConnectionSettings snapshots every task reads at
// submission time.
//
// A generation counter guards against a stale update_server_status call
// racing a concurrent set_servers: status updates tagged with an older
// generation than the registry's current one are silently dropped.
type Registry struct {
	mu sync.RWMutex

	entries    []*serverEntry
	generation uint64

	settings     Settings
	connSettings ConnectionSettings
}

// NewRegistry builds an empty registry with the given default snapshots.
func NewRegistry(settings Settings, connSettings ConnectionSettings) *Registry {
	return &Registry{
		settings:     settings,
		connSettings: connSettings,
	}
}

// SetServers replaces the entire server list (spec §4.A set_servers). Every
// previous Server and its Pool are discarded: in-flight pool shutdowns are
// detached into goroutines tracked by a WaitGroup so set_servers itself
// never blocks on slow-to-drain connections, but Deinit (module.go) awaits
// that WaitGroup before returning. New servers start HEALTHY and are marked
// UNHEALTHY if their initial pool fill fails - health never carries over
// from a prior set_servers call.
func (r *Registry) SetServers(urls []string, wg *sync.WaitGroup) error {
	parsed := make([]*url.URL, 0, len(urls))

	for _, raw := range urls {
		u, err := parseServerURL(raw)
		if err != nil {
			return err
		}

		parsed = append(parsed, u)
	}

	entries := make([]*serverEntry, 0, len(parsed))

	r.mu.Lock()
	connSettings := r.connSettings
	old := r.entries
	r.generation++
	generation := r.generation
	r.mu.Unlock()

	for i, u := range parsed {
		srv := newServer(i, u)

		pool, err := NewPool(srv, connSettings)
		if err != nil {
			srv.status = UnhealthyStatus(err.Error())
			log.Warn().
				Str("server", srv.HostString()).
				Err(err).
				Msg("server unhealthy at registration: initial pool fill failed")
		}

		entries = append(entries, &serverEntry{server: srv, pool: pool})
	}

	r.mu.Lock()
	if r.generation == generation {
		r.entries = entries
	}
	r.mu.Unlock()

	for _, e := range old {
		wg.Add(1)

		go func(e *serverEntry) {
			defer wg.Done()
			e.pool.Shutdown()
		}(e)
	}

	return nil
}

// ClearServers empties the registry (spec §4.A clear_servers), detaching
// pool shutdown the same way SetServers does.
func (r *Registry) ClearServers(wg *sync.WaitGroup) {
	r.mu.Lock()
	old := r.entries
	r.entries = nil
	r.generation++
	r.mu.Unlock()

	for _, e := range old {
		wg.Add(1)

		go func(e *serverEntry) {
			defer wg.Done()
			e.pool.Shutdown()
		}(e)
	}
}

// RefreshLdapSettings swaps in a new Settings snapshot (spec §4.A
// refresh_ldap_settings). Existing pools are untouched - Settings only
// affects bind DN construction and search parameters, not connections.
func (r *Registry) RefreshLdapSettings(settings Settings) {
	r.mu.Lock()
	r.settings = settings
	r.mu.Unlock()
}

// RefreshConnectionSettings swaps in new ConnectionSettings and refreshes
// every existing pool against them (spec §4.A refresh_connection_settings).
// A per-server refresh failure marks that server unhealthy but does not
// abort refreshing the rest.
func (r *Registry) RefreshConnectionSettings(connSettings ConnectionSettings) {
	r.mu.Lock()
	r.connSettings = connSettings
	entries := append([]*serverEntry(nil), r.entries...)
	r.mu.Unlock()

	for _, e := range entries {
		if err := e.pool.Refresh(connSettings); err != nil {
			r.markUnhealthy(e.server.Index, err)
		}
	}
}

// Settings returns the live LDAP-behavior snapshot.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.settings
}

// ConnectionSettings returns the live connection-behavior snapshot.
func (r *Registry) ConnectionSettings() ConnectionSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.connSettings
}

// FindHealthyServer returns the first HEALTHY server entry starting at
// (and wrapping past) afterIndex, per spec §4.A find_healthy_server /
// §4.D's round-robin failover order, along with the registry generation
// it was found under (pass this to SetServerStatus later). Returns
// KindNoServerConfigured if the registry is empty, or
// KindNoHealthyServerAvailable if every server is unhealthy.
func (r *Registry) FindHealthyServer(afterIndex int) (*Server, *Pool, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if n == 0 {
		return nil, nil, r.generation, New(KindNoServerConfigured, "")
	}

	for i := 0; i < n; i++ {
		idx := (afterIndex + i) % n
		e := r.entries[idx]

		if e.server.IsHealthy() {
			return e.server, e.pool, r.generation, nil
		}
	}

	return nil, nil, r.generation, New(KindNoHealthyServerAvailable, "")
}

// SetServerStatus transitions a server's health (spec §4.A
// set_server_status), used by the orchestrator on a connection-class
// failure and by the failure detector on probe results. generation pins
// the call to the registry state it was computed against: if SetServers
// has since replaced the registry, the update is dropped instead of
// mutating a server that no longer belongs to the live configuration.
func (r *Registry) SetServerStatus(index int, generation uint64, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation != r.generation {
		return
	}

	if index < 0 || index >= len(r.entries) {
		return
	}

	e := r.entries[index]
	if e.server.GetStatus().Equal(status) {
		e.server.status = status

		return
	}

	prev := e.server.status
	e.server.status = status

	log.Info().
		Str("server", e.server.HostString()).
		Str("previous", prev.String()).
		Str("current", status.String()).
		Msg("ldap server health transition")
}

// RecordPing stores the round-trip time of a successful failure-detector
// probe against the server at index, if generation still matches the live
// configuration.
func (r *Registry) RecordPing(index int, generation uint64, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if generation != r.generation || index < 0 || index >= len(r.entries) {
		return
	}

	r.entries[index].server.pingTime = &d
}

func (r *Registry) markUnhealthy(index int, err error) {
	r.mu.RLock()
	generation := r.generation
	r.mu.RUnlock()

	r.SetServerStatus(index, generation, UnhealthyStatus(err.Error()))
}

// Generation returns the current configuration generation, to be captured
// alongside a Server/Pool pair by callers that will later call
// SetServerStatus.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.generation
}

// SnapshotServers returns a defensive copy of every configured server's
// current state (spec §4.A snapshot_servers), used by the status command
// and the failure detector's per-server loop.
func (r *Registry) SnapshotServers() ([]*Server, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Server, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.server.Clone())
	}

	return out, r.generation
}

// PoolFor returns the pool for a server index under the given generation,
// or nil if the registry has since moved on.
func (r *Registry) PoolFor(index int, generation uint64) *Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if generation != r.generation || index < 0 || index >= len(r.entries) {
		return nil
	}

	return r.entries[index].pool
}
