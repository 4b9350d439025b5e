// Package options provides configuration parsing and validation for the
// LDAP authentication module's host-facing settings (spec §6).
//
// # Overview
//
// Configuration sources are resolved in priority order:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables
//  3. An optional HJSON config file (-config-file / LDAP_CONFIG_FILE)
//  4. Struct defaults applied via github.com/creasty/defaults
//
// Bounds (connection pool size, timeouts) are enforced with struct tags
// via github.com/go-playground/validator/v10; Parse returns a
// ValidationError whose message lists every violation the validator found.
//
// # Usage
//
//	opts, err := options.Parse()
//	if err != nil {
//		log.Fatal().Err(err).Msg("invalid configuration")
//	}
//
//	settings, err := opts.Settings()
//	connSettings := opts.ConnectionSettings()
//	authMode, err := opts.AuthModeValue()
//
//	m := ldap.NewModule()
//	err = m.Init(ldap.InitOptions{
//		Servers:                 opts.Servers,
//		Settings:                settings,
//		ConnectionSettings:      connSettings,
//		AuthMode:                authMode,
//		AuthEnabled:             opts.AuthEnabled,
//		FailureDetectorInterval: opts.FailureDetectorInterval(),
//	})
//
// # Configuration Options
//
//	LDAP_SERVER                       LDAP server URI(s) (ldap:// or ldaps://), comma- or space-separated; also --ldap-server
//	LDAP_BIND_DN_PREFIX/SUFFIX        bind DN construction for auth_mode=bind
//	LDAP_AUTH_MODE                    bind | search+bind
//	LDAP_AUTH_ENABLED                 whether Auth runs the configured flow (default true)
//	LDAP_SEARCH_BASE/SCOPE/FILTER/ATTRIBUTE/BIND_DN/BIND_PASSWD   search+bind parameters
//	LDAP_DN_ATTRIBUTE                 attribute read off the matched entry (default entryDN)
//	LDAP_USE_STARTTLS                 upgrade connections with StartTLS
//	LDAP_TLS_CA_CERT_PATH/CERT_PATH/KEY_PATH   TLS material
//	LDAP_CONNECTION_POOL_SIZE         pooled connections per server, 1-8192 (default 2)
//	LDAP_FAILURE_DETECTOR_INTERVAL    seconds between probe ticks, 0 disables it (default 1)
//	LDAP_TIMEOUT_CONNECTION           connect timeout, 0 means unbounded (default 10s)
//	LDAP_TIMEOUT_OPERATION            per-operation timeout, 0 means unbounded (default 10s)
//	LOG_LEVEL                         trace, debug, info, warn, error, fatal, panic
//
// Two .env files are loaded via github.com/joho/godotenv, same as the
// teacher: .env.local (not committed) overrides .env.
package options
