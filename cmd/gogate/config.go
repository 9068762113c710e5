package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/spf13/viper"
)

// settings is the file/env shape of the configuration. Every key has a
// default so GOGATE_* variables are honored without a config file.
type settings struct {
	Listen         string `mapstructure:"listen"`
	Dev            bool   `mapstructure:"dev"`
	Production     bool   `mapstructure:"production"`
	ValidationMode string `mapstructure:"validation_mode"`

	Log struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`

	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Username string   `mapstructure:"username"`
		Password string   `mapstructure:"password"`
		DB       int      `mapstructure:"db"`
		Prefix   string   `mapstructure:"prefix"`
	} `mapstructure:"redis"`

	Store struct {
		// Principals is "redis" or "sqlite".
		Principals string `mapstructure:"principals"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"store"`

	JWT struct {
		SigningMethod string        `mapstructure:"signing_method"`
		PrivateKey    string        `mapstructure:"private_key"`
		PublicKey     string        `mapstructure:"public_key"`
		AccessTTL     time.Duration `mapstructure:"access_ttl"`
		Issuer        string        `mapstructure:"issuer"`
		Audience      string        `mapstructure:"audience"`
		KeyID         string        `mapstructure:"key_id"`
	} `mapstructure:"jwt"`

	Session struct {
		Lifetime      time.Duration `mapstructure:"lifetime"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"session"`

	Password struct {
		Memory      uint32 `mapstructure:"memory"`
		Time        uint32 `mapstructure:"time"`
		Parallelism uint8  `mapstructure:"parallelism"`
		Workers     int    `mapstructure:"workers"`
		MinLength   int    `mapstructure:"min_length"`
	} `mapstructure:"password"`

	Passkey struct {
		Issuer string `mapstructure:"issuer"`
		Digits int    `mapstructure:"digits"`
	} `mapstructure:"passkey"`

	Lockout struct {
		Threshold int           `mapstructure:"threshold"`
		Duration  time.Duration `mapstructure:"duration"`
	} `mapstructure:"lockout"`

	Throttle struct {
		Enabled     bool          `mapstructure:"enabled"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		Window      time.Duration `mapstructure:"window"`
	} `mapstructure:"throttle"`

	Audit struct {
		Enabled bool `mapstructure:"enabled"`
		Buffer  int  `mapstructure:"buffer"`
	} `mapstructure:"audit"`

	HTTP struct {
		CookieHashKey     string   `mapstructure:"cookie_hash_key"`
		CookieBlockKey    string   `mapstructure:"cookie_block_key"`
		SecureCookies     bool     `mapstructure:"secure_cookies"`
		AllowedOrigins    []string `mapstructure:"allowed_origins"`
		AdminPrincipals   []string `mapstructure:"admin_principals"`
		TrustProxyHeaders bool     `mapstructure:"trust_proxy_headers"`
	} `mapstructure:"http"`

	WS struct {
		SendBuffer   int     `mapstructure:"send_buffer"`
		InboundRate  float64 `mapstructure:"inbound_rate"`
		InboundBurst int     `mapstructure:"inbound_burst"`
	} `mapstructure:"ws"`

	Notify struct {
		Relay   bool   `mapstructure:"relay"`
		Channel string `mapstructure:"channel"`
	} `mapstructure:"notify"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		OTel    bool `mapstructure:"otel"`
	} `mapstructure:"metrics"`

	Simulator struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"simulator"`

	DevAdmin struct {
		Identifier string `mapstructure:"identifier"`
		Secret     string `mapstructure:"secret"`
		PIN        string `mapstructure:"pin"`
	} `mapstructure:"dev_admin"`
}

func setDefaults(v *viper.Viper) {
	d := goGate.DefaultConfig()

	v.SetDefault("listen", ":8080")
	v.SetDefault("dev", false)
	v.SetDefault("production", false)
	v.SetDefault("validation_mode", d.ValidationMode.String())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("redis.addrs", []string{"127.0.0.1:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", d.Session.RedisPrefix)
	v.SetDefault("store.principals", "redis")
	v.SetDefault("store.sqlite_path", "gogate.db")

	v.SetDefault("jwt.signing_method", d.JWT.SigningMethod)
	v.SetDefault("jwt.private_key", "")
	v.SetDefault("jwt.public_key", "")
	v.SetDefault("jwt.access_ttl", d.JWT.AccessTTL)
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.audience", d.JWT.Audience)
	v.SetDefault("jwt.key_id", "")

	v.SetDefault("session.lifetime", d.Session.Lifetime)
	v.SetDefault("session.sweep_interval", d.Session.SweepInterval)

	v.SetDefault("password.memory", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.workers", d.Password.Workers)
	v.SetDefault("password.min_length", d.Password.MinLength)
	v.SetDefault("passkey.issuer", d.Passkey.Issuer)
	v.SetDefault("passkey.digits", d.Passkey.Digits)

	v.SetDefault("lockout.threshold", d.Lockout.Threshold)
	v.SetDefault("lockout.duration", d.Lockout.Duration)
	v.SetDefault("throttle.enabled", d.Throttle.Enabled)
	v.SetDefault("throttle.max_attempts", d.Throttle.MaxAttempts)
	v.SetDefault("throttle.window", d.Throttle.Window)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer", d.Audit.BufferSize)

	v.SetDefault("http.cookie_hash_key", "")
	v.SetDefault("http.cookie_block_key", "")
	v.SetDefault("http.secure_cookies", true)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.admin_principals", []string{})
	v.SetDefault("http.trust_proxy_headers", false)

	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.inbound_rate", 5.0)
	v.SetDefault("ws.inbound_burst", 10)
	v.SetDefault("notify.relay", true)
	v.SetDefault("notify.channel", "gg:notify")
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.otel", false)
	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.interval", 5*time.Second)

	v.SetDefault("dev_admin.identifier", "admin")
	v.SetDefault("dev_admin.secret", "change-me-now")
	v.SetDefault("dev_admin.pin", "123456")
}

// newViper reads path (optional) and GOGATE_* environment variables. Nested
// keys map to env names with dots replaced by underscores, e.g.
// GOGATE_JWT_ACCESS_TTL.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GOGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// engineConfig maps settings onto goGate.Config. In dev mode missing keys
// are generated and the throttle and secure cookies are relaxed.
func (s settings) engineConfig() (goGate.Config, error) {
	cfg := goGate.DefaultConfig()

	mode, err := goGate.ParseValidationMode(s.ValidationMode)
	if err != nil {
		return cfg, err
	}
	cfg.ValidationMode = mode
	cfg.Security.ProductionMode = s.Production

	cfg.JWT.SigningMethod = s.JWT.SigningMethod
	cfg.JWT.AccessTTL = s.JWT.AccessTTL
	cfg.JWT.Issuer = s.JWT.Issuer
	cfg.JWT.Audience = s.JWT.Audience
	cfg.JWT.KeyID = s.JWT.KeyID
	if err := s.signingKeys(&cfg); err != nil {
		return cfg, err
	}

	cfg.Session.RedisPrefix = s.Redis.Prefix
	cfg.Session.Lifetime = s.Session.Lifetime
	cfg.Session.SweepInterval = s.Session.SweepInterval

	cfg.Password.Memory = s.Password.Memory
	cfg.Password.Time = s.Password.Time
	cfg.Password.Parallelism = s.Password.Parallelism
	cfg.Password.Workers = s.Password.Workers
	cfg.Password.MinLength = s.Password.MinLength
	cfg.Passkey.Issuer = s.Passkey.Issuer
	cfg.Passkey.Digits = s.Passkey.Digits

	cfg.Lockout.Threshold = s.Lockout.Threshold
	cfg.Lockout.Duration = s.Lockout.Duration
	cfg.Throttle.Enabled = s.Throttle.Enabled
	cfg.Throttle.MaxAttempts = s.Throttle.MaxAttempts
	cfg.Throttle.Window = s.Throttle.Window
	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Audit.BufferSize = s.Audit.Buffer
	cfg.Metrics.Enabled = s.Metrics.Enabled

	return cfg, cfg.Validate()
}

func (s settings) signingKeys(cfg *goGate.Config) error {
	priv, err := decodeKey(s.JWT.PrivateKey)
	if err != nil {
		return fmt.Errorf("jwt.private_key: %w", err)
	}
	pub, err := decodeKey(s.JWT.PublicKey)
	if err != nil {
		return fmt.Errorf("jwt.public_key: %w", err)
	}

	if cfg.JWT.SigningMethod == "ed25519" {
		switch {
		case len(priv) == ed25519.SeedSize:
			key := ed25519.NewKeyFromSeed(priv)
			priv = key
			if len(pub) == 0 {
				pub = key.Public().(ed25519.PublicKey)
			}
		case len(priv) == ed25519.PrivateKeySize && len(pub) == 0:
			pub = ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
		case len(priv) == 0 && s.Dev:
			pub, priv, err = ed25519.GenerateKey(nil)
			if err != nil {
				return err
			}
		}
	} else if len(priv) == 0 && s.Dev {
		priv, err = randomKey(32)
		if err != nil {
			return err
		}
	}

	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return nil
}

// cookieKeys returns the securecookie hash and block keys, generating an
// ephemeral hash key in dev mode.
func (s settings) cookieKeys() (hash, block []byte, err error) {
	hash, err = decodeKey(s.HTTP.CookieHashKey)
	if err != nil {
		return nil, nil, fmt.Errorf("http.cookie_hash_key: %w", err)
	}
	block, err = decodeKey(s.HTTP.CookieBlockKey)
	if err != nil {
		return nil, nil, fmt.Errorf("http.cookie_block_key: %w", err)
	}
	if len(hash) == 0 {
		if !s.Dev {
			return nil, nil, errors.New("http.cookie_hash_key is required")
		}
		if hash, err = randomKey(32); err != nil {
			return nil, nil, err
		}
	}
	return hash, block, nil
}

// decodeKey accepts PEM text as-is and base64 (standard or URL alphabet)
// otherwise.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	if !strings.HasSuffix(s, "=") {
		enc = enc.WithPadding(base64.NoPadding)
	}
	return enc.DecodeString(s)
}
