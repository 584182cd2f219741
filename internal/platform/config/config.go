package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "algodid/pkg/platform/strings"
)

// LedgerMode selects the ledger backend.
type LedgerMode string

const (
	LedgerAlgod     LedgerMode = "algod"
	LedgerSimulated LedgerMode = "simulated"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel slog.Level

	Ledger        LedgerMode
	AlgodURL      string
	AlgodToken    string
	DefaultApp    uint64
	SimulatedApps []uint64

	ConfirmationRounds  uint64
	ConfirmationTimeout time.Duration
	ReadRetryAttempts   int
	ReadRetryBackoff    time.Duration
	RequestTimeout      time.Duration

	DatabaseURL string
	Redis       RedisConfig
	RateLimit   RateLimitConfig
}

// RedisConfig is empty-URL tolerant: no URL means in-memory rate limiting.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig holds the per-IP write and read budgets.
type RateLimitConfig struct {
	Disabled    bool
	WritePerMin int
	ReadPerMin  int
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Unset variables fall back to development defaults; malformed ones are errors.
func FromEnv() (Server, error) {
	e := &envReader{}
	cfg := Server{
		Addr:       e.str("ALGODID_ADDR", ":8080"),
		Ledger:     LedgerMode(strings.ToLower(e.str("LEDGER_MODE", string(LedgerSimulated)))),
		AlgodURL:   e.str("ALGOD_URL", "http://localhost:4001"),
		AlgodToken: e.str("ALGOD_TOKEN", ""),
		DefaultApp: e.uint("DEFAULT_APP_ID", 0),

		ConfirmationRounds:  e.uint("CONFIRMATION_ROUNDS", 10),
		ConfirmationTimeout: e.duration("CONFIRMATION_TIMEOUT", 60*time.Second),
		ReadRetryAttempts:   e.int("READ_RETRY_ATTEMPTS", 3),
		ReadRetryBackoff:    e.duration("READ_RETRY_BACKOFF", 200*time.Millisecond),
		RequestTimeout:      e.duration("REQUEST_TIMEOUT", 90*time.Second),

		DatabaseURL: e.str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			Disabled:    e.bool("DISABLE_RATE_LIMITING", false),
			WritePerMin: e.int("RATELIMIT_WRITE_PER_MIN", 20),
			ReadPerMin:  e.int("RATELIMIT_READ_PER_MIN", 300),
		},
	}
	cfg.SimulatedApps = e.uints("SIMULATED_APP_IDS", []uint64{1})
	if cfg.DefaultApp == 0 && cfg.Ledger == LedgerSimulated && len(cfg.SimulatedApps) > 0 {
		cfg.DefaultApp = cfg.SimulatedApps[0]
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(e.str("LOG_LEVEL", "info"))); err != nil {
		e.fail("LOG_LEVEL", err)
	}
	if e.err != nil {
		return Server{}, e.err
	}
	return cfg, cfg.validate()
}

func (s Server) validate() error {
	switch s.Ledger {
	case LedgerAlgod:
		if s.AlgodURL == "" {
			return fmt.Errorf("ALGOD_URL is required in %s mode", LedgerAlgod)
		}
	case LedgerSimulated:
	default:
		return fmt.Errorf("LEDGER_MODE: unknown mode %q", s.Ledger)
	}
	if s.ConfirmationRounds == 0 {
		return fmt.Errorf("CONFIRMATION_ROUNDS must be positive")
	}
	if s.ReadRetryAttempts < 1 {
		return fmt.Errorf("READ_RETRY_ATTEMPTS must be at least 1")
	}
	if s.RateLimit.WritePerMin < 1 || s.RateLimit.ReadPerMin < 1 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// envReader records the first parse failure so FromEnv reads linearly.
type envReader struct {
	err error
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (e *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) uint(key string, def uint64) uint64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) uints(key string, def []uint64) []uint64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	var out []uint64
	for _, part := range platformstrings.SplitList(v) {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil || n == 0 {
			e.fail(key, fmt.Errorf("invalid app id %q", part))
			return def
		}
		out = append(out, n)
	}
	return out
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
