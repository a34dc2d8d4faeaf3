package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full gateway configuration tree.
type Config struct {
	WorkingDirectory string         `mapstructure:"working_directory"`
	SmritiHome       string         `mapstructure:"smriti_home"` // default ~/.chitragupta/smriti
	Log              LogConfig      `mapstructure:"log"`
	Database         DatabaseConfig `mapstructure:"database"`
	Rta              RtaConfig      `mapstructure:"rta"`
	Chetana          ChetanaConfig  `mapstructure:"chetana"`
	Akasha           AkashaConfig   `mapstructure:"akasha"`
	Vidhi            VidhiConfig    `mapstructure:"vidhi"`
	Marga            MargaConfig    `mapstructure:"marga"`
	Router           RouterConfig   `mapstructure:"router"`
	Retry            RetryConfig    `mapstructure:"retry"`
	Embedding        EmbedConfig    `mapstructure:"embedding"`
	Tantra           TantraConfig   `mapstructure:"tantra"`
	Compactor        CompactConfig  `mapstructure:"compactor"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DatabaseConfig selects the SQL backend. The default is two sqlite files
// under SmritiHome (agent.db, vectors.db); postgres stays available for
// shared deployments.
type DatabaseConfig struct {
	Type      string `mapstructure:"type"`       // sqlite, postgres
	AgentDSN  string `mapstructure:"agent_dsn"`  // empty = <smriti_home>/agent.db
	VectorDSN string `mapstructure:"vector_dsn"` // empty = <smriti_home>/vectors.db
}

// RtaConfig parameterizes the invariant engine.
type RtaConfig struct {
	CostBudgetUSD  float64  `mapstructure:"cost_budget_usd"` // default 10
	AllowedDomains []string `mapstructure:"allowed_domains"`
	MaxAgentDepth  int      `mapstructure:"max_agent_depth"` // default 10
}

// ChetanaConfig holds the cognitive-layer tunables.
type ChetanaConfig struct {
	FrustrationDelta     float64 `mapstructure:"frustration_delta"`      // default 0.15
	CorrectionDelta      float64 `mapstructure:"correction_delta"`       // default 0.25
	FrustrationRecovery  float64 `mapstructure:"frustration_recovery"`   // default 0.9
	ConfidenceDecay      float64 `mapstructure:"confidence_decay"`       // default 0.95
	ConfidenceSuccess    float64 `mapstructure:"confidence_success"`     // default 0.05
	ArousalSpawnDelta    float64 `mapstructure:"arousal_spawn_delta"`    // default 0.1
	AffectAlertThreshold float64 `mapstructure:"affect_alert_threshold"` // default 0.7
	AutonomyThreshold    float64 `mapstructure:"autonomy_threshold"`     // default 0.8
	SalienceLambda       float64 `mapstructure:"salience_lambda"`        // default 0.1
	ErrorBoost           float64 `mapstructure:"error_boost"`            // default 0.3
	CorrectionBoost      float64 `mapstructure:"correction_boost"`       // default 0.5
	FocusWindow          int     `mapstructure:"focus_window"`           // default 20, cap 200
	MaxIntentions        int     `mapstructure:"max_intentions"`         // default 20, cap 100
	AbandonmentThreshold int     `mapstructure:"abandonment_threshold"`  // default 5 turns
}

// AkashaConfig parameterizes the stigmergic field.
type AkashaConfig struct {
	InitialStrength float64       `mapstructure:"initial_strength"` // default 0.5
	MinStrength     float64       `mapstructure:"min_strength"`     // default 0.05
	BaseBoost       float64       `mapstructure:"base_boost"`       // default 0.2
	DiminishAlpha   float64       `mapstructure:"diminish_alpha"`   // default 0.3
	HalfLife        time.Duration `mapstructure:"half_life"`        // default 7 days
	ReinforceBeta   float64       `mapstructure:"reinforce_beta"`   // default 0.5
	MaxTraces       int           `mapstructure:"max_traces"`       // default 10000, cap 50000
	ResultBoost     float64       `mapstructure:"result_boost"`     // default 0.15
	ResultBoostCap  float64       `mapstructure:"result_boost_cap"` // default 0.3
}

// VidhiConfig parameterizes procedure mining.
type VidhiConfig struct {
	MinN           int     `mapstructure:"min_n"`            // default 2
	MaxN           int     `mapstructure:"max_n"`            // default 5
	MinSessions    int     `mapstructure:"min_sessions"`     // default 3
	MinSuccessRate float64 `mapstructure:"min_success_rate"` // default 0.75
}

// MargaConfig points at the declarative binding table.
type MargaConfig struct {
	BindingsPath string `mapstructure:"bindings_path"` // yaml, hot-reloaded
}

// RouterConfig points at the slot and rule tables.
type RouterConfig struct {
	SlotsPath string `mapstructure:"slots_path"` // yaml, hot-reloaded
	Bandit    string `mapstructure:"bandit"`     // ucb1, thompson, linucb
	StatePath string `mapstructure:"state_path"` // bandit state persistence
}

// RetryConfig mirrors the backoff contract.
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`        // default 3
	BaseDelay         time.Duration `mapstructure:"base_delay"`         // default 1s
	MaxDelay          time.Duration `mapstructure:"max_delay"`          // default 30s
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"` // default 2
}

// EmbedConfig selects the embedding provider; the deterministic hash fallback
// is always available and requires no configuration.
type EmbedConfig struct {
	Endpoint  string        `mapstructure:"endpoint"` // empty = hash fallback only
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"` // default 384
	Timeout   time.Duration `mapstructure:"timeout"`   // default 30s
}

// TantraConfig lists external MCP servers to federate.
type TantraConfig struct {
	Servers        []MCPServerConfig `mapstructure:"servers"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"` // default 30s
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	Name      string   `mapstructure:"name"`
	Transport string   `mapstructure:"transport"` // stdio, sse
	Command   string   `mapstructure:"command"`   // stdio: binary to spawn
	Args      []string `mapstructure:"args"`
	URL       string   `mapstructure:"url"` // sse: base URL
}

// CompactConfig bounds the four memory streams.
type CompactConfig struct {
	TotalTokenBudget int `mapstructure:"total_token_budget"` // default 8000
}

// Load reads config from the given path (or ~/.chitragupta/config.yaml) with
// CHITRAGUPTA_* env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".chitragupta"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CHITRAGUPTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine — defaults + env carry a dev setup.
		var notFound viper.ConfigFileNotFoundError
		if !errorsAs(err, &notFound) && path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.SmritiHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.SmritiHome = filepath.Join(home, ".chitragupta", "smriti")
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory, _ = os.Getwd()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("database.type", "sqlite")

	v.SetDefault("rta.cost_budget_usd", 10.0)
	v.SetDefault("rta.max_agent_depth", 10)

	v.SetDefault("chetana.frustration_delta", 0.15)
	v.SetDefault("chetana.correction_delta", 0.25)
	v.SetDefault("chetana.frustration_recovery", 0.9)
	v.SetDefault("chetana.confidence_decay", 0.95)
	v.SetDefault("chetana.confidence_success", 0.05)
	v.SetDefault("chetana.arousal_spawn_delta", 0.1)
	v.SetDefault("chetana.affect_alert_threshold", 0.7)
	v.SetDefault("chetana.autonomy_threshold", 0.8)
	v.SetDefault("chetana.salience_lambda", 0.1)
	v.SetDefault("chetana.error_boost", 0.3)
	v.SetDefault("chetana.correction_boost", 0.5)
	v.SetDefault("chetana.focus_window", 20)
	v.SetDefault("chetana.max_intentions", 20)
	v.SetDefault("chetana.abandonment_threshold", 5)

	v.SetDefault("akasha.initial_strength", 0.5)
	v.SetDefault("akasha.min_strength", 0.05)
	v.SetDefault("akasha.base_boost", 0.2)
	v.SetDefault("akasha.diminish_alpha", 0.3)
	v.SetDefault("akasha.half_life", 7*24*time.Hour)
	v.SetDefault("akasha.reinforce_beta", 0.5)
	v.SetDefault("akasha.max_traces", 10000)
	v.SetDefault("akasha.result_boost", 0.15)
	v.SetDefault("akasha.result_boost_cap", 0.3)

	v.SetDefault("vidhi.min_n", 2)
	v.SetDefault("vidhi.max_n", 5)
	v.SetDefault("vidhi.min_sessions", 3)
	v.SetDefault("vidhi.min_success_rate", 0.75)

	v.SetDefault("router.bandit", "ucb1")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)

	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("tantra.request_timeout", 30*time.Second)

	v.SetDefault("compactor.total_token_budget", 8000)
}

// errorsAs is a local indirection so the viper import list stays tidy.
func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
