//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/ldap-manager/internal/ldap"
)

func newModule(t *testing.T, dir *Directory, opts ldap.InitOptions) *ldap.Module {
	t.Helper()

	m := ldap.NewModule()
	require.NoError(t, m.Init(opts))

	t.Cleanup(func() {
		assert.NoError(t, m.Deinit())
	})

	return m
}

// TestBindAuth reproduces spec §8 scenarios 1 and 2: a direct bind succeeds
// with the right password and fails with the wrong one, without the
// server's health changing on a mere credential mismatch.
func TestBindAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dir, err := StartDirectory(ctx, DefaultDirectoryConfig())
	require.NoError(t, err)
	defer func() { _ = dir.Stop(ctx) }()

	require.NoError(t, dir.AddUser(ctx, "alice", "correcthorse"))

	uri, err := dir.URI(ctx)
	require.NoError(t, err)

	t.Run("correct password binds", func(t *testing.T) {
		m2 := newModule(t, dir, ldap.InitOptions{
			Servers: []string{uri},
			Settings: ldap.Settings{
				BindDNPrefix: "uid=",
				BindDNSuffix: ",ou=people," + dir.BaseDN,
			},
			ConnectionSettings: ldap.DefaultConnectionSettings(),
			AuthMode:           ldap.AuthModeBind,
			AuthEnabled:        true,
		})

		assert.NoError(t, m2.Auth("alice", "correcthorse"))
	})

	t.Run("wrong password is rejected, server stays healthy", func(t *testing.T) {
		m3 := newModule(t, dir, ldap.InitOptions{
			Servers: []string{uri},
			Settings: ldap.Settings{
				BindDNPrefix: "uid=",
				BindDNSuffix: ",ou=people," + dir.BaseDN,
			},
			ConnectionSettings: ldap.DefaultConnectionSettings(),
			AuthMode:           ldap.AuthModeBind,
			AuthEnabled:        true,
		})

		err := m3.Auth("alice", "wrongpw")
		assert.Error(t, err)

		status := m3.Status()
		require.Len(t, status, 1)
		assert.True(t, status[0].Healthy, "a bad password must not mark the server unhealthy")
	})
}

// TestSearchAndBindAuth reproduces spec §8 scenario 4: an admin bind,
// directory search, then user bind.
func TestSearchAndBindAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dir, err := StartDirectory(ctx, DefaultDirectoryConfig())
	require.NoError(t, err)
	defer func() { _ = dir.Stop(ctx) }()

	require.NoError(t, dir.AddUser(ctx, "alice", "pw"))

	uri, err := dir.URI(ctx)
	require.NoError(t, err)

	m := newModule(t, dir, ldap.InitOptions{
		Servers: []string{uri},
		Settings: ldap.Settings{
			SearchBase:       "ou=people," + dir.BaseDN,
			SearchScope:      ldap.ScopeSubTree,
			SearchFilter:     "objectClass=inetOrgPerson",
			SearchAttribute:  "uid",
			SearchBindDN:     dir.AdminDN,
			SearchBindPasswd: dir.AdminPass,
			DNAttribute:      "entryDN",
		},
		ConnectionSettings: ldap.DefaultConnectionSettings(),
		AuthMode:           ldap.AuthModeSearchAndBind,
		AuthEnabled:        true,
	})

	assert.NoError(t, m.Auth("alice", "pw"))
	assert.Error(t, m.Auth("alice", "wrongpw"))
	assert.Error(t, m.Auth("nobody", "whatever"))
}

// TestAuthDisabled reproduces the disabled-auth short-circuit: Auth must
// return nil without attempting any LDAP operation.
func TestAuthDisabled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dir, err := StartDirectory(ctx, DefaultDirectoryConfig())
	require.NoError(t, err)
	defer func() { _ = dir.Stop(ctx) }()

	uri, err := dir.URI(ctx)
	require.NoError(t, err)

	m := newModule(t, dir, ldap.InitOptions{
		Servers:            []string{uri},
		Settings:           ldap.DefaultSettings(),
		ConnectionSettings: ldap.DefaultConnectionSettings(),
		AuthMode:           ldap.AuthModeBind,
		AuthEnabled:        false,
	})

	assert.NoError(t, m.Auth("anyone", "anything"))
	assert.False(t, m.AuthEnabled())
}
