package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	CatalogPostgres = "postgres"
	CatalogFixture  = "fixture"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL     string `yaml:"database_url"`
	ServerAddr      string `yaml:"server_addr"`
	LogLevel        string `yaml:"log_level"`
	NodeID          string `yaml:"node_id"`
	NodeKeySeed     string `yaml:"node_key_seed"`
	CatalogProvider string `yaml:"catalog_provider"`
	FixturePath     string `yaml:"fixture_path"`
	JWTSecret       string `yaml:"jwt_secret"`
	JWTIssuer       string `yaml:"jwt_issuer"`

	Session   SessionConfig   `yaml:"session"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// SessionConfig holds the dispute timing rules applied to new sessions.
type SessionConfig struct {
	ConfirmWindow         time.Duration `yaml:"confirm_window"`
	ExtensionWindow       time.Duration `yaml:"extension_window"`
	ManifestationWindow   time.Duration `yaml:"manifestation_window"`
	ReasoningBusinessDays int           `yaml:"reasoning_business_days"`
	CounterBusinessDays   int           `yaml:"counter_business_days"`
	Holidays              []string      `yaml:"holidays"`
	RandomBase            time.Duration `yaml:"random_base"`
	RandomSpread          time.Duration `yaml:"random_spread"`
}

type ClusterConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RaftAddr          string        `yaml:"raft_addr"`
	DataDir           string        `yaml:"data_dir"`
	Bootstrap         bool          `yaml:"bootstrap"`
	ApplyTimeout      time.Duration `yaml:"apply_timeout"`
	JoinEndpoint      string        `yaml:"join_endpoint"`
	JoinToken         string        `yaml:"join_token"`
	JoinRetries       int           `yaml:"join_retries"`
	JoinRetryDelay    time.Duration `yaml:"join_retry_delay"`
	StartupWaitLeader time.Duration `yaml:"startup_wait_leader"`
}

type SchedulerConfig struct {
	TickSpec  string `yaml:"tick_spec"`
	FlushSpec string `yaml:"flush_spec"`
}

type WebhookConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	QueueSize int    `yaml:"queue_size"`
}

func defaults() *Config {
	hostname, _ := os.Hostname()
	nodeID := strings.TrimSpace(hostname)
	if nodeID == "" {
		nodeID = "node-1"
	}
	return &Config{
		ServerAddr:      "0.0.0.0:8080",
		LogLevel:        "info",
		NodeID:          nodeID,
		CatalogProvider: CatalogPostgres,
		Session: SessionConfig{
			ConfirmWindow:         10 * time.Second,
			ExtensionWindow:       2 * time.Minute,
			ManifestationWindow:   4 * time.Hour,
			ReasoningBusinessDays: 3,
			CounterBusinessDays:   3,
			RandomBase:            10 * time.Minute,
			RandomSpread:          10 * time.Minute,
		},
		Cluster: ClusterConfig{
			RaftAddr:          "127.0.0.1:17000",
			ApplyTimeout:      5 * time.Second,
			JoinRetries:       30,
			JoinRetryDelay:    time.Second,
			StartupWaitLeader: 4 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickSpec:  "@every 1s",
			FlushSpec: "@every 2s",
		},
		Webhook: WebhookConfig{QueueSize: 256},
	}
}

// Load reads configuration: defaults, then the YAML file named by --config or
// CONFIG_PATH, then environment, then explicitly set command-line flags.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("disputa", pflag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	addr := fs.String("addr", "", "HTTP listen address")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	nodeID := fs.String("node-id", "", "node id")
	catalog := fs.String("catalog", "", "catalog provider: postgres or fixture")
	fixture := fs.String("fixture", "", "fixture catalog file")
	cluster := fs.Bool("cluster", false, "replicate the session store with raft")
	raftAddr := fs.String("raft-addr", "", "raft bind address")
	dataDir := fs.String("data-dir", "", "raft data directory")
	bootstrap := fs.Bool("bootstrap", false, "bootstrap a new raft cluster")
	join := fs.String("join", "", "HTTP endpoint of a cluster member to join")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults()
	if path := strings.TrimSpace(*configPath); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if fs.Changed("addr") {
		cfg.ServerAddr = *addr
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("node-id") {
		cfg.NodeID = *nodeID
	}
	if fs.Changed("catalog") {
		cfg.CatalogProvider = *catalog
	}
	if fs.Changed("fixture") {
		cfg.FixturePath = *fixture
	}
	if fs.Changed("cluster") {
		cfg.Cluster.Enabled = *cluster
	}
	if fs.Changed("raft-addr") {
		cfg.Cluster.RaftAddr = *raftAddr
	}
	if fs.Changed("data-dir") {
		cfg.Cluster.DataDir = *dataDir
	}
	if fs.Changed("bootstrap") {
		cfg.Cluster.Bootstrap = *bootstrap
	}
	if fs.Changed("join") {
		cfg.Cluster.JoinEndpoint = *join
	}

	if cfg.DatabaseURL == "" && cfg.CatalogProvider == CatalogPostgres {
		cfg.DatabaseURL = databaseURLFromParts()
	}
	if cfg.Cluster.DataDir == "" {
		cfg.Cluster.DataDir = "tmp/raft/" + cfg.NodeID
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.NodeID = getenv("NODE_ID", cfg.NodeID)
	cfg.NodeKeySeed = getenv("NODE_KEY_SEED", cfg.NodeKeySeed)
	cfg.CatalogProvider = getenv("CATALOG_PROVIDER", cfg.CatalogProvider)
	cfg.FixturePath = getenv("FIXTURE_PATH", cfg.FixturePath)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getenv("JWT_ISSUER", cfg.JWTIssuer)

	s := &cfg.Session
	s.ConfirmWindow = parseDuration(os.Getenv("SESSION_CONFIRM_WINDOW"), s.ConfirmWindow)
	s.ExtensionWindow = parseDuration(os.Getenv("SESSION_EXTENSION_WINDOW"), s.ExtensionWindow)
	s.ManifestationWindow = parseDuration(os.Getenv("SESSION_MANIFESTATION_WINDOW"), s.ManifestationWindow)
	s.ReasoningBusinessDays = parseInt(os.Getenv("SESSION_REASONING_DAYS"), s.ReasoningBusinessDays)
	s.CounterBusinessDays = parseInt(os.Getenv("SESSION_COUNTER_DAYS"), s.CounterBusinessDays)
	s.RandomBase = parseDuration(os.Getenv("SESSION_RANDOM_BASE"), s.RandomBase)
	s.RandomSpread = parseDuration(os.Getenv("SESSION_RANDOM_SPREAD"), s.RandomSpread)
	if raw := os.Getenv("SESSION_HOLIDAYS"); raw != "" {
		s.Holidays = splitList(raw)
	}

	c := &cfg.Cluster
	c.Enabled = parseBool(os.Getenv("CLUSTER_ENABLED"), c.Enabled)
	c.RaftAddr = getenv("RAFT_ADDR", c.RaftAddr)
	c.DataDir = getenv("RAFT_DATA_DIR", c.DataDir)
	c.Bootstrap = parseBool(os.Getenv("RAFT_BOOTSTRAP"), c.Bootstrap)
	c.ApplyTimeout = parseDuration(os.Getenv("RAFT_APPLY_TIMEOUT"), c.ApplyTimeout)
	c.JoinEndpoint = getenv("RAFT_JOIN_ENDPOINT", c.JoinEndpoint)
	c.JoinToken = getenv("CLUSTER_JOIN_TOKEN", c.JoinToken)
	c.JoinRetries = parseInt(os.Getenv("RAFT_JOIN_RETRIES"), c.JoinRetries)
	c.JoinRetryDelay = parseDuration(os.Getenv("RAFT_JOIN_RETRY_DELAY"), c.JoinRetryDelay)
	c.StartupWaitLeader = parseDuration(os.Getenv("RAFT_STARTUP_WAIT_LEADER"), c.StartupWaitLeader)

	cfg.Scheduler.TickSpec = getenv("SCHEDULER_TICK_SPEC", cfg.Scheduler.TickSpec)
	cfg.Scheduler.FlushSpec = getenv("SCHEDULER_FLUSH_SPEC", cfg.Scheduler.FlushSpec)

	cfg.Webhook.URL = getenv("NOTIFY_WEBHOOK_URL", cfg.Webhook.URL)
	cfg.Webhook.Token = getenv("NOTIFY_WEBHOOK_TOKEN", cfg.Webhook.Token)
	cfg.Webhook.QueueSize = parseInt(os.Getenv("NOTIFY_QUEUE_SIZE"), cfg.Webhook.QueueSize)
}

func databaseURLFromParts() string {
	user := getenv("POSTGRES_USER", "disputa")
	pass := getenv("POSTGRES_PASSWORD", "disputa_pass")
	db := getenv("POSTGRES_DB", "disputa")
	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	sslmode := getenv("DATABASE_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.CatalogProvider {
	case CatalogPostgres:
	case CatalogFixture:
		if c.FixturePath == "" {
			errs = append(errs, errors.New("fixture catalog needs FIXTURE_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog provider %q", c.CatalogProvider))
	}
	if strings.TrimSpace(c.NodeID) == "" {
		errs = append(errs, errors.New("node id is required"))
	}
	if c.Session.RandomSpread < 0 || c.Session.RandomBase < 0 {
		errs = append(errs, errors.New("random end window must not be negative"))
	}
	if c.Cluster.Enabled && c.NodeKeySeed == "" {
		errs = append(errs, errors.New("cluster mode needs NODE_KEY_SEED"))
	}
	return errors.Join(errs...)
}

func getenv(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
