// internal/config/config.go
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. NEOCASCADE_PORT.
const EnvPrefix = "NEOCASCADE"

// Store backends selectable with --store.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds everything the binaries read from flags, env vars and .env.
type Config struct {
	Bind  string
	Port  int
	Store string

	RedisAddr   string
	RedisDB     int
	DatabaseURL string

	TickInterval    time.Duration
	ChatRetention   int
	AlertRetention  int
	MaxCodeAttempts int
	TokenExpire     time.Duration

	// AuthPrivateKey and AuthPublicKey point at a raw ed25519 key pair. When both are
	// empty a fresh pair is generated at startup.
	AuthPrivateKey string
	AuthPublicKey  string

	// RateLimit is the allowed intents per second per connection; burst is twice that.
	RateLimit float64

	Verbose bool
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("--redis-addr is required with --store=redis")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreMemory, StoreRedis)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive: %s", c.TickInterval)
	}
	if c.ChatRetention < 0 || c.AlertRetention < 0 {
		return errors.New("retention limits cannot be negative")
	}
	if c.MaxCodeAttempts < 1 {
		return fmt.Errorf("max code attempts must be at least 1: %d", c.MaxCodeAttempts)
	}
	if (c.AuthPrivateKey == "") != (c.AuthPublicKey == "") {
		return errors.New("--auth-private-key and --auth-public-key must be set together")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive: %v", c.RateLimit)
	}
	return nil
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// NewCommand builds a cobra command whose flags are bound to cfg and overridable from
// NEOCASCADE_* env vars. run is called after validation.
func NewCommand(use, short string, cfg *Config, run func(ctx context.Context, cfg *Config) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: NEOCASCADE_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: NEOCASCADE_PORT)")
	fs.StringVar(&cfg.Store, "store", StoreMemory, "document store backend, memory or redis (env: NEOCASCADE_STORE)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address (env: NEOCASCADE_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: NEOCASCADE_REDIS_DB)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection string; history and accounts are disabled when empty (env: NEOCASCADE_DATABASE_URL)")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", 5*time.Second, "simulation tick period (env: NEOCASCADE_TICK_INTERVAL)")
	fs.IntVar(&cfg.ChatRetention, "chat-retention", 0, "chat messages kept per room, 0 keeps all (env: NEOCASCADE_CHAT_RETENTION)")
	fs.IntVar(&cfg.AlertRetention, "alert-retention", 5, "alerts kept per room (env: NEOCASCADE_ALERT_RETENTION)")
	fs.IntVar(&cfg.MaxCodeAttempts, "max-code-attempts", 10, "room code collisions tolerated before giving up (env: NEOCASCADE_MAX_CODE_ATTEMPTS)")
	fs.DurationVar(&cfg.TokenExpire, "token-expire", 24*time.Hour, "auth token lifetime (env: NEOCASCADE_TOKEN_EXPIRE)")
	fs.StringVar(&cfg.AuthPrivateKey, "auth-private-key", "", "path to a raw ed25519 private key for signing tokens (env: NEOCASCADE_AUTH_PRIVATE_KEY)")
	fs.StringVar(&cfg.AuthPublicKey, "auth-public-key", "", "path to the matching raw ed25519 public key (env: NEOCASCADE_AUTH_PUBLIC_KEY)")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", 10, "intents per second allowed per connection (env: NEOCASCADE_RATE_LIMIT)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: NEOCASCADE_VERBOSE)")

	BindEnv(fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// BindEnv fills every flag not set on the command line from its NEOCASCADE_* env var.
// Commands that add flags after NewCommand call it again.
func BindEnv(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}
