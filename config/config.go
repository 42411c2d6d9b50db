// Package config reads the environment of the three binaries into typed
// structs. Every loader takes a lookup function so tests never touch the
// process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/qacache/logging"
)

// Lookup matches os.LookupEnv.
type Lookup func(key string) (string, bool)

// Env reads the real process environment.
var Env Lookup = os.LookupEnv

// Postgres holds the connection settings shared by every binary.
type Postgres struct {
	URL        string
	User       string
	Host       string
	Database   string
	Password   string
	Port       int
	SSLMode    string
	MaxClients int
	IdleTime   time.Duration
}

// DSN returns DATABASE_URL verbatim when set, otherwise a URL built from the
// PG* variables.
func (p Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

// Cache configures cmd/cached.
type Cache struct {
	Port            int
	MaxItems        int
	TTL             time.Duration
	SweepInterval   time.Duration
	ScoreServiceURL string
	FallbackTimeout time.Duration
	FallbackTTL     time.Duration
	AdminTokenHash  string
	EventLog        bool
	Postgres        Postgres
	Log             logging.Config
}

// Scorer configures cmd/scorer.
type Scorer struct {
	Port            int
	CacheServiceURL string
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIMaxTokens int
	SystemPrompt    string
	RedisAddr       string
	RedisPassword   string
	MemoTTL         time.Duration
	Migrate         bool
	Postgres        Postgres
	Log             logging.Config
}

// Traffic configures cmd/trafficgen.
type Traffic struct {
	CacheServiceURL   string
	ScorerURL         string
	RequestsPerMinute int
	Distribution      string
	PoissonLambda     float64
	RequestTimeout    time.Duration
	Postgres          Postgres
	Log               logging.Config
}

func LoadCache(lookup Lookup) (Cache, error) {
	r := reader{lookup: lookup}
	cfg := Cache{
		Port:            r.integer("PORT", 8200),
		MaxItems:        r.integer("CACHE_MAX_ITEMS", 1000),
		TTL:             r.seconds("CACHE_TTL", 3600),
		SweepInterval:   r.seconds("CACHE_SWEEP_INTERVAL", 0),
		ScoreServiceURL: r.absURL("SCORE_SERVICE_URL", ""),
		FallbackTimeout: r.millis("FALLBACK_TIMEOUT_MS", 3000),
		FallbackTTL:     r.seconds("FALLBACK_TTL", 60),
		AdminTokenHash:  r.str("CACHE_ADMIN_TOKEN_HASH", ""),
		EventLog:        r.flag("CACHE_EVENT_LOG", false),
		Postgres:        r.postgres(),
		Log:             r.log(),
	}
	if cfg.MaxItems <= 0 {
		r.fail("CACHE_MAX_ITEMS", errors.New("must be positive"))
	}
	return cfg, r.err()
}

func LoadScorer(lookup Lookup) (Scorer, error) {
	r := reader{lookup: lookup}
	cfg := Scorer{
		Port:            r.integer("PORT", 8100),
		CacheServiceURL: r.absURL("CACHE_SERVICE_URL", "http://localhost:8200"),
		OpenAIKey:       r.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   r.absURL("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:     r.str("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIMaxTokens: r.integer("OPENAI_MAX_TOKENS", 200),
		SystemPrompt:    r.str("OPENAI_SYSTEM_PROMPT", ""),
		RedisAddr:       r.str("REDIS_ADDR", ""),
		RedisPassword:   r.str("REDIS_PASSWORD", ""),
		MemoTTL:         r.seconds("LLM_MEMO_TTL", 86400),
		Migrate:         r.flag("DB_MIGRATE", true),
		Postgres:        r.postgres(),
		Log:             r.log(),
	}
	if cfg.OpenAIKey == "" {
		r.fail("OPENAI_API_KEY", errors.New("is required"))
	}
	return cfg, r.err()
}

func LoadTraffic(lookup Lookup) (Traffic, error) {
	r := reader{lookup: lookup}
	cfg := Traffic{
		CacheServiceURL:   r.absURL("CACHE_SERVICE_URL", "http://localhost:8200"),
		ScorerURL:         r.absURL("SCORER_URL", "http://localhost:8100"),
		RequestsPerMinute: r.integer("REQUESTS_PER_MINUTE", 300),
		Distribution:      r.str("DIST", "poisson"),
		PoissonLambda:     r.number("POISSON_LAMBDA", 2),
		RequestTimeout:    r.millis("REQUEST_TIMEOUT_MS", 4000),
		Postgres:          r.postgres(),
		Log:               r.log(),
	}
	if cfg.RequestsPerMinute < 1 {
		cfg.RequestsPerMinute = 1
	}
	return cfg, r.err()
}

// reader collects every malformed variable so one run reports them all.
type reader struct {
	lookup Lookup
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	if r.lookup == nil {
		return "", false
	}
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
}

func (r *reader) err() error { return errors.Join(r.errs...) }

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) number(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *reader) flag(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

// seconds reads a non-negative, possibly fractional number of seconds.
func (r *reader) seconds(key string, def float64) time.Duration {
	f := r.number(key, def)
	if f < 0 {
		r.fail(key, errors.New("must not be negative"))
		f = def
	}
	return time.Duration(f * float64(time.Second))
}

func (r *reader) millis(key string, def int) time.Duration {
	n := r.integer(key, def)
	if n < 0 {
		r.fail(key, errors.New("must not be negative"))
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

// absURL validates an absolute http(s) URL and strips trailing slashes.
func (r *reader) absURL(key, def string) string {
	v := r.str(key, def)
	if v == "" {
		return ""
	}
	u, err := url.Parse(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		r.fail(key, fmt.Errorf("%q is not an absolute http(s) URL", v))
		return def
	}
	return strings.TrimRight(v, "/")
}

func (r *reader) postgres() Postgres {
	return Postgres{
		URL:        r.str("DATABASE_URL", ""),
		User:       r.str("PGUSER", "user"),
		Host:       r.str("PGHOST", "localhost"),
		Database:   r.str("PGDATABASE", "yahoo_dataset"),
		Password:   r.str("PGPASSWORD", "1234"),
		Port:       r.integer("PGPORT", 5432),
		SSLMode:    r.str("PGSSLMODE", "disable"),
		MaxClients: r.integer("PGMAXCLIENTS", 10),
		IdleTime:   r.millis("PGIDLE", 30000),
	}
}

func (r *reader) log() logging.Config {
	return logging.Config{
		Level:  r.str("LOG_LEVEL", "info"),
		Format: r.str("LOG_FORMAT", "json"),
	}
}

// Addr formats a listen address for port.
func Addr(port int) string { return ":" + strconv.Itoa(port) }
