package options

import (
	"testing"

	coreldap "github.com/netresearch/ldap-manager/internal/ldap"
)

func TestOpts_Settings(t *testing.T) {
	o := &Opts{
		BindDNPrefix:    "uid=",
		BindDNSuffix:    ",ou=people,dc=example,dc=com",
		SearchBase:      "dc=example,dc=com",
		SearchScope:     "one",
		SearchFilter:    "(objectClass=person)",
		SearchAttribute: "uid",
		DNAttribute:     "entryDN",
	}

	settings, err := o.Settings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.SearchScope != coreldap.ScopeOneLevel {
		t.Errorf("expected ScopeOneLevel, got %v", settings.SearchScope)
	}

	if settings.BindDNPrefix != "uid=" {
		t.Errorf("expected bind DN prefix uid=, got %s", settings.BindDNPrefix)
	}
}

func TestOpts_Settings_InvalidScope(t *testing.T) {
	o := &Opts{SearchScope: "invalid"}

	if _, err := o.Settings(); err == nil {
		t.Error("expected error for invalid search scope")
	}
}

func TestOpts_ConnectionSettings(t *testing.T) {
	o := &Opts{
		UseStartTLS:        true,
		CACertPath:         "/tmp/ca.pem",
		ConnectionPoolSize: 4,
	}

	cs := o.ConnectionSettings()

	if !cs.UseStartTLS {
		t.Error("expected UseStartTLS true")
	}

	if cs.PoolSize != 4 {
		t.Errorf("expected pool size 4, got %d", cs.PoolSize)
	}
}

func TestOpts_AuthModeValue(t *testing.T) {
	o := &Opts{AuthMode: "search+bind"}

	mode, err := o.AuthModeValue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mode != coreldap.AuthModeSearchAndBind {
		t.Errorf("expected AuthModeSearchAndBind, got %v", mode)
	}
}

func TestOpts_FailureDetectorInterval(t *testing.T) {
	o := &Opts{FailureDetectorSeconds: 45}

	if got, want := o.FailureDetectorInterval().Seconds(), 45.0; got != want {
		t.Errorf("expected %v seconds, got %v", want, got)
	}
}
