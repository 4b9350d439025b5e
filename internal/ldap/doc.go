// Package ldap implements the concurrency and availability core of the LDAP
// authentication extension: a per-server connection pool, a job scheduler
// bridging a blocking host auth callback to asynchronous LDAP work, a
// failover-aware bind/search+bind orchestrator, and a background failure
// detector.
//
// # Architecture
//
// Six pieces compose into the Module entry point:
//
//	┌──────────────────────────────┐
//	│  Registry (registry.go)      │  server list + live Settings/
//	│                              │  ConnectionSettings snapshots
//	└──────────────────────────────┘
//	               ↓
//	┌──────────────────────────────┐
//	│  Pool (pool.go)               │  one per server: epoch-versioned
//	│                              │  idle connection queue
//	└──────────────────────────────┘
//	               ↓
//	┌──────────────────────────────┐
//	│  conn (conn.go)               │  a single dialed *goldap.Conn:
//	│                              │  dial/bind/search/whoAmI
//	└──────────────────────────────┘
//
//	┌──────────────────────────────┐   ┌──────────────────────────────┐
//	│  Orchestrator (orchestrator.go)│   │  Detector (detector.go)      │
//	│  bind / search+bind with      │   │  periodic probe: WhoAmI for  │
//	│  failover across servers      │   │  healthy, reconnect for      │
//	└──────────────────────────────┘   │  unhealthy, pool refill on   │
//	                                    │  recovery                    │
//	                                    └──────────────────────────────┘
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│  Scheduler (scheduler.go): single dispatcher goroutine, spawns    │
//	│  each submitted task onto its own goroutine                      │
//	└──────────────────────────────────────────────────────────────────┘
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│  Module (module.go): Init/Deinit/Auth/Status, the only surface   │
//	│  the host package needs                                          │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Error handling
//
// Every failure in this package is an *Error carrying one ErrorKind from a
// fixed taxonomy (errors.go), except that a cancelled or expired context
// (Pool.Checkout, the detector's reconnect retry) surfaces as the context's
// own error. IsConnectionClass reports which kinds drive
// the orchestrator's and detector's failover/recovery logic versus which
// are terminal (a well-formed LDAP protocol response, a misconfiguration).
//
// # Concurrency model
//
// Registry, Pool, and Scheduler are all safe for concurrent use. A single
// Module is meant to be shared across every concurrent Auth call the host
// makes; Init/Deinit are not safe to call concurrently with themselves or
// with Auth.
package ldap
