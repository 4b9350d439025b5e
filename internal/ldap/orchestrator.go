package ldap

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Orchestrator runs the bind and search+bind authentication flows
// (component D) against the Registry, retrying against the next healthy
// server whenever a connection-class error occurs.
type Orchestrator struct {
	registry *Registry
}

// NewOrchestrator builds an Orchestrator over registry.
func NewOrchestrator(registry *Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// Bind authenticates username/password with a direct simple bind of
// bind_dn_prefix + username + bind_dn_suffix.
func (o *Orchestrator) Bind(ctx context.Context, username, password string) error {
	settings := o.registry.Settings()
	userDN := settings.userDN(username)

	return o.runWithFailover(ctx, func(c *conn) error {
		return c.bind(userDN, password)
	})
}

// SearchAndBind authenticates username/password by first resolving the
// user's DN via a directory search (optionally preceded by an admin bind),
// then binding as that DN with password.
func (o *Orchestrator) SearchAndBind(ctx context.Context, username, password string) error {
	settings := o.registry.Settings()

	return o.runWithFailover(ctx, func(c *conn) error {
		if settings.hasAdminBind() {
			if err := c.adminBind(settings.SearchBindDN, settings.SearchBindPasswd); err != nil {
				return err
			}
		}

		userDN, err := c.search(settings, username)
		if err != nil {
			return err
		}

		return c.bind(userDN, password)
	})
}

// runWithFailover is the failover loop (spec §4.D): find a healthy server,
// check out a connection, run op against it, and on a connection-class
// error mark that server unhealthy and retry against the next one. Any
// other error - including a protocol-class bind/search failure like
// invalid credentials - is terminal and returned as-is.
func (o *Orchestrator) runWithFailover(ctx context.Context, op func(c *conn) error) error {
	afterIndex := 0

	for {
		server, pool, generation, err := o.registry.FindHealthyServer(afterIndex)
		if err != nil {
			return err
		}

		c, epoch, err := pool.Checkout(ctx)
		if err != nil {
			return err
		}

		opErr := op(c)

		if opErr != nil && IsConnectionClass(opErr) {
			pool.Discard(c)

			log.Warn().
				Str("server", server.HostString()).
				Err(opErr).
				Msg("ldap operation failed with a connection-class error, failing over")

			o.registry.SetServerStatus(server.Index, generation, UnhealthyStatus(opErr.Error()))
			afterIndex = server.Index + 1

			continue
		}

		pool.Return(c, epoch)

		return opErr
	}
}
