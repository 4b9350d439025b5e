//go:build integration

package integration

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/openldap"
)

// Directory wraps a running OpenLDAP container, built with
// testcontainers-go's openldap module, and the fixed test fixtures
// (base DN, admin credentials) seeded into it.
type Directory struct {
	container *openldap.OpenLDAPContainer

	BaseDN    string
	AdminDN   string
	AdminPass string
}

// DirectoryConfig holds the fixture values used to seed a Directory.
type DirectoryConfig struct {
	BaseDN    string
	AdminPass string
}

// DefaultDirectoryConfig returns sensible defaults for testing.
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		BaseDN:    "dc=example,dc=org",
		AdminPass: "adminpassword",
	}
}

// StartDirectory starts an OpenLDAP container and seeds it with the
// organizational units the scenario tests build their users/groups under.
func StartDirectory(ctx context.Context, cfg DirectoryConfig) (*Directory, error) {
	ctr, err := openldap.Run(ctx, "bitnami/openldap:2.6",
		openldap.WithAdminUsername("admin"),
		openldap.WithAdminPassword(cfg.AdminPass),
		openldap.WithRoot(cfg.BaseDN),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start openldap container: %w", err)
	}

	d := &Directory{
		container: ctr,
		BaseDN:    cfg.BaseDN,
		AdminDN:   "cn=admin," + cfg.BaseDN,
		AdminPass: cfg.AdminPass,
	}

	if err := d.createOUs(ctx); err != nil {
		_ = ctr.Terminate(ctx)

		return nil, err
	}

	return d, nil
}

// Stop terminates the underlying container.
func (d *Directory) Stop(ctx context.Context) error {
	if d.container == nil {
		return nil
	}

	return d.container.Terminate(ctx)
}

// URI returns the ldap:// connection string scenario tests pass as a
// Module server URL.
func (d *Directory) URI(ctx context.Context) (string, error) {
	return d.container.ConnectionString(ctx)
}

func (d *Directory) ldapExec(ctx context.Context, ldif string) error {
	_, _, err := d.container.Exec(ctx, []string{
		"bash", "-c",
		fmt.Sprintf(`echo '%s' | ldapadd -x -H ldap://localhost -D "%s" -w "%s" -c`,
			ldif, d.AdminDN, d.AdminPass),
	})

	return err
}

func (d *Directory) createOUs(ctx context.Context) error {
	for _, ou := range []string{"people", "groups"} {
		ldif := fmt.Sprintf("dn: ou=%s,%s\nobjectClass: organizationalUnit\nobjectClass: top\nou: %s\n",
			ou, d.BaseDN, ou)

		if err := d.ldapExec(ctx, ldif); err != nil {
			return fmt.Errorf("failed to create ou=%s: %w", ou, err)
		}
	}

	return nil
}

// AddUser adds a test user entry under ou=people.
func (d *Directory) AddUser(ctx context.Context, uid, password string) error {
	ldif := fmt.Sprintf(`dn: uid=%s,ou=people,%s
objectClass: inetOrgPerson
objectClass: organizationalPerson
objectClass: person
objectClass: top
cn: %s
sn: %s
uid: %s
userPassword: %s
`, uid, d.BaseDN, uid, uid, uid, password)

	return d.ldapExec(ctx, ldif)
}

// UserDN returns the DN AddUser gives a uid.
func (d *Directory) UserDN(uid string) string {
	return fmt.Sprintf("uid=%s,ou=people,%s", uid, d.BaseDN)
}
