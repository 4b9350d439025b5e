// Package options provides configuration parsing and validation for the
// LDAP authentication module's host-facing settings.
package options

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/hjson/hjson-go/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	coreldap "github.com/netresearch/ldap-manager/internal/ldap"
)

var validate = validator.New()

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Opts holds every configuration value the §6 surface describes: the
// server list, bind DN construction, search parameters, TLS, pool sizing,
// timeouts, and the failure detector interval.
type Opts struct {
	LogLevel zerolog.Level `validate:"-"`

	Servers []string `validate:"dive,required"`

	BindDNPrefix string
	BindDNSuffix string
	AuthMode     string `default:"bind" validate:"oneof=bind search+bind"`
	AuthEnabled  bool   `default:"true"`

	SearchBase       string
	SearchScope      string `default:"sub" validate:"oneof=base one sub"`
	SearchFilter     string
	SearchAttribute  string
	SearchBindDN     string
	SearchBindPasswd string
	DNAttribute      string `default:"entryDN"`

	UseStartTLS    bool
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string

	ConnectionPoolSize     int           `default:"2"  validate:"min=1,max=8192"`
	FailureDetectorSeconds int           `default:"1" validate:"min=0"`
	ConnectTimeout         time.Duration `default:"10s" validate:"min=0"`
	OperationTimeout       time.Duration `default:"10s" validate:"min=0"`
}

// envStringOrDefault returns the environment variable's value, or d if it is
// unset or empty.
func envStringOrDefault(name, d string) string {
	if v, exists := os.LookupEnv(name); exists && v != "" {
		return v
	}

	return d
}

func envBoolOrDefault(name string, d bool) (bool, error) {
	raw := envStringOrDefault(name, strconv.FormatBool(d))

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as bool: %v", raw, err),
		}
	}

	return v, nil
}

func envIntOrDefault(name string, d int) (int, error) {
	raw := envStringOrDefault(name, strconv.Itoa(d))

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as int: %v", raw, err),
		}
	}

	return v, nil
}

func envDurationOrDefault(name string, d time.Duration) (time.Duration, error) {
	raw := envStringOrDefault(name, d.String())

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as duration: %v", raw, err),
		}
	}

	return v, nil
}

func envLogLevelOrDefault(name string, d zerolog.Level) (string, error) {
	raw := envStringOrDefault(name, d.String())

	if _, err := zerolog.ParseLevel(raw); err != nil {
		return "", ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as log level: %v", raw, err),
		}
	}

	return raw, nil
}

// FileConfig is the shape of an optional HJSON config file (-config-file /
// LDAP_CONFIG_FILE) providing an initial server list and LDAP settings
// without relying on flags or environment variables, the way the teacher
// loads .env files for its own settings.
type FileConfig struct {
	Servers          []string `json:"servers"`
	BindDNPrefix     string   `json:"bind_dn_prefix"`
	BindDNSuffix     string   `json:"bind_dn_suffix"`
	SearchBase       string   `json:"search_base"`
	SearchFilter     string   `json:"search_filter"`
	SearchAttribute  string   `json:"search_attribute"`
	SearchBindDN     string   `json:"search_bind_dn"`
	SearchBindPasswd string   `json:"search_bind_passwd"`
}

// loadFileConfig reads an HJSON config file, if path is non-empty.
func loadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ValidationError{Field: "config-file", Message: err.Error()}
	}

	var cfg FileConfig
	if err := hjson.Unmarshal(raw, &cfg); err != nil {
		return nil, ValidationError{Field: "config-file", Message: err.Error()}
	}

	return &cfg, nil
}

// Parse parses command-line flags, environment variables, and an optional
// HJSON config file into Opts. Flags take priority over environment
// variables, which take priority over the config file, which takes
// priority over struct defaults.
func Parse() (*Opts, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	opts := &Opts{}
	if err := defaults.Set(opts); err != nil {
		return nil, ValidationError{Field: "defaults", Message: err.Error()}
	}

	logLevelStr, err := envLogLevelOrDefault("LOG_LEVEL", zerolog.InfoLevel)
	if err != nil {
		return nil, err
	}

	authEnabled, err := envBoolOrDefault("LDAP_AUTH_ENABLED", true)
	if err != nil {
		return nil, err
	}

	useStartTLS, err := envBoolOrDefault("LDAP_USE_STARTTLS", false)
	if err != nil {
		return nil, err
	}

	poolSize, err := envIntOrDefault("LDAP_CONNECTION_POOL_SIZE", opts.ConnectionPoolSize)
	if err != nil {
		return nil, err
	}

	detectorSeconds, err := envIntOrDefault("LDAP_FAILURE_DETECTOR_INTERVAL", opts.FailureDetectorSeconds)
	if err != nil {
		return nil, err
	}

	connectTimeout, err := envDurationOrDefault("LDAP_TIMEOUT_CONNECTION", opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	operationTimeout, err := envDurationOrDefault("LDAP_TIMEOUT_OPERATION", opts.OperationTimeout)
	if err != nil {
		return nil, err
	}

	var (
		fLogLevel = flag.String("log-level", logLevelStr,
			"Log level. Valid values are: trace, debug, info, warn, error, fatal, panic.")
		fConfigFile = flag.String("config-file", envStringOrDefault("LDAP_CONFIG_FILE", ""),
			"Path to an optional HJSON config file providing servers and LDAP settings.")

		fServer = flag.String("ldap-server", envStringOrDefault("LDAP_SERVER", ""),
			"LDAP server URI, has to begin with `ldap://` or `ldaps://`. "+
				"Separate multiple servers with commas or spaces, in the flag or in LDAP_SERVER; "+
				"if the flag is repeated, only its last value is used.")

		fBindDNPrefix = flag.String("bind-dn-prefix", envStringOrDefault("LDAP_BIND_DN_PREFIX", ""),
			"Prefix prepended to the username to form the bind DN in bind auth mode.")
		fBindDNSuffix = flag.String("bind-dn-suffix", envStringOrDefault("LDAP_BIND_DN_SUFFIX", ""),
			"Suffix appended to the username to form the bind DN in bind auth mode.")
		fAuthMode = flag.String("auth-mode", envStringOrDefault("LDAP_AUTH_MODE", opts.AuthMode),
			"Authentication flow: `bind` or `search+bind`.")
		fAuthEnabled = flag.Bool("auth-enabled", authEnabled,
			"Whether Auth actually runs the configured flow.")

		fSearchBase = flag.String("search-base", envStringOrDefault("LDAP_SEARCH_BASE", ""),
			"Base DN for the search+bind flow's directory search.")
		fSearchScope = flag.String("search-scope", envStringOrDefault("LDAP_SEARCH_SCOPE", opts.SearchScope),
			"Search scope for search+bind: `base`, `one`, or `sub`.")
		fSearchFilter = flag.String("search-filter", envStringOrDefault("LDAP_SEARCH_FILTER", ""),
			"Search filter template for search+bind. Defaults to objectClass=* when unset.")
		fSearchAttribute = flag.String("search-attribute", envStringOrDefault("LDAP_SEARCH_ATTRIBUTE", ""),
			"Attribute compared against the username in search+bind. Defaults to uid when unset.")
		fSearchBindDN = flag.String("search-bind-dn", envStringOrDefault("LDAP_SEARCH_BIND_DN", ""),
			"DN used for an optional admin bind before searching.")
		fSearchBindPasswd = flag.String("search-bind-passwd", envStringOrDefault("LDAP_SEARCH_BIND_PASSWD", ""),
			"Password for search-bind-dn.")
		fDNAttribute = flag.String("dn-attribute", envStringOrDefault("LDAP_DN_ATTRIBUTE", opts.DNAttribute),
			"Attribute read off the matched entry to obtain its DN.")

		fUseStartTLS = flag.Bool("use-starttls", useStartTLS,
			"Upgrade each connection with StartTLS after the initial plaintext dial.")
		fCACertPath = flag.String("tls-ca-cert-path", envStringOrDefault("LDAP_TLS_CA_CERT_PATH", ""),
			"Path to a PEM CA certificate bundle used to verify the server.")
		fClientCertPath = flag.String("tls-cert-path", envStringOrDefault("LDAP_TLS_CERT_PATH", ""),
			"Path to a PEM client certificate for mutual TLS.")
		fClientKeyPath = flag.String("tls-key-path", envStringOrDefault("LDAP_TLS_KEY_PATH", ""),
			"Path to the PEM private key matching tls-cert-path.")

		fPoolSize = flag.Int("connection-pool-size", poolSize,
			"Number of pooled connections maintained per server (1-8192).")
		fDetectorSeconds = flag.Int("failure-detector-interval", detectorSeconds,
			"Seconds between failure detector probe ticks. 0 disables the detector.")
		fConnectTimeout = flag.Duration("timeout-connection", connectTimeout,
			"Timeout for establishing a new LDAP connection. 0 means unbounded.")
		fOperationTimeout = flag.Duration("timeout-ldap-operation", operationTimeout,
			"Timeout for a single LDAP operation (bind/search/ping). 0 means unbounded.")
	)

	if !flag.Parsed() {
		flag.Parse()
	}

	logLevel, err := zerolog.ParseLevel(*fLogLevel)
	if err != nil {
		return nil, ValidationError{Field: "log-level", Message: err.Error()}
	}

	fileCfg, err := loadFileConfig(*fConfigFile)
	if err != nil {
		return nil, err
	}

	servers := flag.Args()
	if *fServer != "" {
		servers = append(servers, strings.Fields(strings.ReplaceAll(*fServer, ",", " "))...)
	}

	if len(servers) == 0 && fileCfg != nil {
		servers = fileCfg.Servers
	}

	opts.LogLevel = logLevel
	opts.Servers = servers
	opts.BindDNPrefix = firstNonEmpty(*fBindDNPrefix, fileConfigField(fileCfg, func(c *FileConfig) string { return c.BindDNPrefix }))
	opts.BindDNSuffix = firstNonEmpty(*fBindDNSuffix, fileConfigField(fileCfg, func(c *FileConfig) string { return c.BindDNSuffix }))
	opts.AuthMode = *fAuthMode
	opts.AuthEnabled = *fAuthEnabled
	opts.SearchBase = firstNonEmpty(*fSearchBase, fileConfigField(fileCfg, func(c *FileConfig) string { return c.SearchBase }))
	opts.SearchScope = *fSearchScope
	opts.SearchFilter = firstNonEmpty(*fSearchFilter, fileConfigField(fileCfg, func(c *FileConfig) string { return c.SearchFilter }))
	opts.SearchAttribute = firstNonEmpty(*fSearchAttribute, fileConfigField(fileCfg, func(c *FileConfig) string { return c.SearchAttribute }))
	opts.SearchBindDN = firstNonEmpty(*fSearchBindDN, fileConfigField(fileCfg, func(c *FileConfig) string { return c.SearchBindDN }))
	opts.SearchBindPasswd = firstNonEmpty(*fSearchBindPasswd, fileConfigField(fileCfg, func(c *FileConfig) string { return c.SearchBindPasswd }))
	opts.DNAttribute = *fDNAttribute
	opts.UseStartTLS = *fUseStartTLS
	opts.CACertPath = *fCACertPath
	opts.ClientCertPath = *fClientCertPath
	opts.ClientKeyPath = *fClientKeyPath
	opts.ConnectionPoolSize = *fPoolSize
	opts.FailureDetectorSeconds = *fDetectorSeconds
	opts.ConnectTimeout = *fConnectTimeout
	opts.OperationTimeout = *fOperationTimeout

	if err := validate.Struct(opts); err != nil {
		return nil, ValidationError{Field: "opts", Message: err.Error()}
	}

	if opts.ClientCertPath != "" && opts.ClientKeyPath == "" {
		return nil, ValidationError{Field: "tls-key-path", Message: "required when tls-cert-path is set"}
	}

	return opts, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func fileConfigField(c *FileConfig, get func(*FileConfig) string) string {
	if c == nil {
		return ""
	}

	return get(c)
}

// Settings builds the core package's immutable LDAP-behavior snapshot from
// these options.
func (o *Opts) Settings() (coreldap.Settings, error) {
	scope, err := coreldap.ParseSearchScope(o.SearchScope)
	if err != nil {
		return coreldap.Settings{}, err
	}

	return coreldap.Settings{
		BindDNPrefix:     o.BindDNPrefix,
		BindDNSuffix:     o.BindDNSuffix,
		SearchBase:       o.SearchBase,
		SearchScope:      scope,
		SearchFilter:     o.SearchFilter,
		SearchAttribute:  o.SearchAttribute,
		SearchBindDN:     o.SearchBindDN,
		SearchBindPasswd: o.SearchBindPasswd,
		DNAttribute:      o.DNAttribute,
	}, nil
}

// ConnectionSettings builds the core package's immutable connection-behavior
// snapshot from these options.
func (o *Opts) ConnectionSettings() coreldap.ConnectionSettings {
	return coreldap.ConnectionSettings{
		UseStartTLS:      o.UseStartTLS,
		CACertPath:       o.CACertPath,
		ClientCertPath:   o.ClientCertPath,
		ClientKeyPath:    o.ClientKeyPath,
		PoolSize:         o.ConnectionPoolSize,
		ConnectTimeout:   o.ConnectTimeout,
		OperationTimeout: o.OperationTimeout,
	}
}

// AuthModeValue parses the configured auth mode into the core package's enum.
func (o *Opts) AuthModeValue() (coreldap.AuthMode, error) {
	return coreldap.ParseAuthMode(o.AuthMode)
}

// FailureDetectorInterval converts the configured seconds into a Duration,
// <= 0 disabling the detector per spec §6.
func (o *Opts) FailureDetectorInterval() time.Duration {
	return time.Duration(o.FailureDetectorSeconds) * time.Second
}
