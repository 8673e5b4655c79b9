// Package config loads nsauthd's runtime configuration: struct defaults,
// then environment variables prefixed "DNS_", unmarshaled into AppConfig and
// validated. Configuration is immutable once Load returns; a reconfigure is
// either a process restart or, for zone data specifically, a fresh snapshot
// published through the same mechanism as a zone reload (internal/ns/snapshot).
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig is the full configuration tree for the nsauthd process.
type AppConfig struct {
	// Env selects the logging encoder: "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log      LogConfig      `koanf:"log"`
	Zone     ZoneConfig     `koanf:"zone"`
	UDP      UDPConfig      `koanf:"udp"`
	QUIC     QUICConfig     `koanf:"quic"`
	Notify   NotifyConfig   `koanf:"notify"`
}

// LogConfig controls the global structured logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// ZoneConfig points at the directory of zone definition files watched for
// reloads.
type ZoneConfig struct {
	Directory string `koanf:"directory" validate:"required"`
}

// UDPConfig configures the batched UDP datagram pipeline (C6).
type UDPConfig struct {
	Port        int  `koanf:"port" validate:"required,gte=1,lt=65536"`
	Workers     int  `koanf:"workers" validate:"required,gte=1"`
	BatchSize   int  `koanf:"batch_size" validate:"required,gte=1,lte=1024"`
	ReusePort   bool `koanf:"reuse_port"`
	AllowXFR    bool `koanf:"allow_xfr"`
}

// QUICConfig configures the optional DoQ listener and demultiplexer (C7).
type QUICConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Port        int    `koanf:"port" validate:"required_if=Enabled true,omitempty,gte=1,lt=65536"`
	TableSize   int    `koanf:"table_size" validate:"required,gte=1"`
	RetryFilter int    `koanf:"retry_filter_bits" validate:"required,gte=1"`
	CertFile    string `koanf:"cert_file" validate:"required_if=Enabled true"`
	KeyFile     string `koanf:"key_file" validate:"required_if=Enabled true"`
	TicketDB    string `koanf:"ticket_db" validate:"required_if=Enabled true"`
}

// NotifyConfig configures the outbound NOTIFY requestor (C8).
type NotifyConfig struct {
	Peers      []string `koanf:"peers" validate:"omitempty,dive,ip_port"`
	TimeoutMS  int      `koanf:"timeout_ms" validate:"required,gte=1"`
	MaxRetries int      `koanf:"max_retries" validate:"required,gte=0"`
}

// defaultAppConfig defines the configuration nsauthd runs with absent any
// environment overrides.
var defaultAppConfig = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Zone: ZoneConfig{Directory: "/etc/nsauthd/zones/"},
	UDP: UDPConfig{
		Port:      53,
		Workers:   4,
		BatchSize: 64,
		ReusePort: true,
		AllowXFR:  false,
	},
	QUIC: QUICConfig{
		Enabled:     false,
		Port:        853,
		TableSize:   4096,
		RetryFilter: 1 << 20,
		CertFile:    "",
		KeyFile:     "",
		TicketDB:    "/var/lib/nsauthd/quic-tickets.db",
	},
	Notify: NotifyConfig{
		Peers:      nil,
		TimeoutMS:  2000,
		MaxRetries: 3,
	},
}

// validIPPort reports whether a field is a valid "ip:port" address, used for
// notify.peers entries.
func validIPPort(fl validator.FieldLevel) bool {
	return isValidIPPort(fl.Field().String())
}

// isValidIPPort is the pure check validIPPort delegates to, so it can be
// exercised without a validator.FieldLevel fixture.
func isValidIPPort(addr string) bool {
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads "DNS_"-prefixed environment variables, lowercasing keys
// and splitting space/comma-delimited values into slices (for notify.peers).
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
			// Only the first underscore separates the config section from
			// the field name (e.g. "udp_batch_size" -> "udp.batch_size");
			// env vars have no dots, so this is the only way to recover the
			// nested koanf key from a flat DNS_SECTION_FIELD_NAME shape.
			if idx := strings.Index(key, "_"); idx >= 0 {
				key = key[:idx] + "." + key[idx+1:]
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return key, value
			}
			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}
			return key, value
		},
	}), nil)
}

// Load builds an AppConfig from struct defaults overridden by "DNS_"-prefixed
// environment variables, and validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultAppConfig, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("config: loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("ip_port", validIPPort); err != nil {
		return nil, fmt.Errorf("config: registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}
