package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ProviderConfig     ProviderConfig     `json:"provider"`
	AnalysisConfig     AnalysisConfig     `json:"analysis"`
	TouchConfig        TouchConfig        `json:"touch"`
	ConsensusConfig    ConsensusConfig    `json:"consensus"`
	SchedulerConfig    SchedulerConfig    `json:"scheduler"`
	MonitorConfig      MonitorConfig      `json:"monitor"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	RedisConfig        RedisConfig        `json:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
}

// ProviderConfig holds the options-data provider connection settings
type ProviderConfig struct {
	BaseURL      string `json:"base_url"`
	StreamURL    string `json:"stream_url"`    // websocket endpoint for spot ticks
	APIKey       string `json:"api_key"`       // overridden by Vault when enabled
	MockMode     bool   `json:"mock_mode"`     // serve simulated chains when no provider is reachable
	RequestLimit int    `json:"request_limit"` // requests per minute
}

// AnalysisConfig holds the gamma exposure engine parameters
type AnalysisConfig struct {
	Symbols               []string `json:"symbols"`
	ContractMultiplier    float64  `json:"contract_multiplier"`
	ReferenceVolumeWeight float64  `json:"reference_volume_weight"`
	WallProximityPoints   float64  `json:"wall_proximity_points"`
}

// TouchConfig holds the touch-probability model parameters. The tier
// probabilities and blend weights come straight from the trading playbook and
// are kept configurable for recalibration.
type TouchConfig struct {
	ModelProbabilities []float64 `json:"model_probabilities"`
	ModelWeight        float64   `json:"model_weight"`
	HistoryWeight      float64   `json:"history_weight"`
	ExactPct           float64   `json:"exact_pct"`
	NearPct            float64   `json:"near_pct"`
	VolumeBoostMax     float64   `json:"volume_boost_max"`
}

// ConsensusConfig holds the resolver weights and thresholds
type ConsensusConfig struct {
	GammaWeight         float64 `json:"gamma_weight"`
	TouchWeight         float64 `json:"touch_weight"`
	VolumeWeight        float64 `json:"volume_weight"`
	MinConsensus        float64 `json:"min_consensus"`
	MaxNodeDistance     float64 `json:"max_node_distance"`
	StopFraction        float64 `json:"stop_fraction"`
	MaxPositionFraction float64 `json:"max_position_fraction"`
}

// SchedulerConfig drives the periodic analysis loop
type SchedulerConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// MonitorConfig drives level-touch detection on the spot stream
type MonitorConfig struct {
	Enabled              bool    `json:"enabled"`
	TouchPct             float64 `json:"touch_pct"`              // distance counting as a test of a level
	VolumeConfirmRatio   float64 `json:"volume_confirm_ratio"`   // tick volume vs baseline to flag confirmation
	OutcomeWindowSeconds int     `json:"outcome_window_seconds"` // how long before a touch resolves
	OutcomeMovePct       float64 `json:"outcome_move_pct"`       // move away from the level that counts as held
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

type ServerConfig struct {
	Enabled        bool   `json:"enabled"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	AllowedOrigins string `json:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	OperatorUser        string        `json:"operator_user"`
	OperatorPassword    string        `json:"operator_password"` // bcrypt hash
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// Load reads config.json when present and applies environment overrides on
// top. Environment variables always win.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ProviderConfig.BaseURL = getEnvOrDefault("PROVIDER_BASE_URL", cfg.ProviderConfig.BaseURL)
	cfg.ProviderConfig.StreamURL = getEnvOrDefault("PROVIDER_STREAM_URL", cfg.ProviderConfig.StreamURL)
	cfg.ProviderConfig.APIKey = getEnvOrDefault("PROVIDER_API_KEY", cfg.ProviderConfig.APIKey)
	cfg.ProviderConfig.MockMode = getEnvOrDefault("MOCK_MODE", boolStr(cfg.ProviderConfig.MockMode)) == "true"

	if symbols := os.Getenv("ANALYSIS_SYMBOLS"); symbols != "" {
		cfg.AnalysisConfig.Symbols = splitCSV(symbols)
	}

	cfg.SchedulerConfig.Enabled = getEnvOrDefault("SCHEDULER_ENABLED", boolStr(cfg.SchedulerConfig.Enabled)) == "true"
	cfg.SchedulerConfig.IntervalSeconds = getEnvIntOrDefault("SCHEDULER_INTERVAL_SECONDS", cfg.SchedulerConfig.IntervalSeconds)

	cfg.MonitorConfig.Enabled = getEnvOrDefault("MONITOR_ENABLED", boolStr(cfg.MonitorConfig.Enabled)) == "true"

	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolStr(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolStr(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", boolStr(cfg.NotificationConfig.Discord.Enabled)) == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	cfg.ServerConfig.Enabled = getEnvOrDefault("WEB_ENABLED", boolStr(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("OPERATOR_USER", cfg.AuthConfig.OperatorUser)
	cfg.AuthConfig.OperatorPassword = getEnvOrDefault("OPERATOR_PASSWORD", cfg.AuthConfig.OperatorPassword)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", boolStr(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
}

func applyDefaults(cfg *Config) {
	if len(cfg.AnalysisConfig.Symbols) == 0 {
		cfg.AnalysisConfig.Symbols = []string{"SPY"}
	}
	if cfg.AnalysisConfig.ContractMultiplier == 0 {
		cfg.AnalysisConfig.ContractMultiplier = 100
	}
	if cfg.AnalysisConfig.ReferenceVolumeWeight == 0 {
		cfg.AnalysisConfig.ReferenceVolumeWeight = 1_000_000
	}
	if cfg.AnalysisConfig.WallProximityPoints == 0 {
		cfg.AnalysisConfig.WallProximityPoints = 20
	}

	if len(cfg.TouchConfig.ModelProbabilities) == 0 {
		cfg.TouchConfig.ModelProbabilities = []float64{0.90, 0.66, 0.33, 0.20}
	}
	if cfg.TouchConfig.ModelWeight == 0 {
		cfg.TouchConfig.ModelWeight = 0.7
	}
	if cfg.TouchConfig.HistoryWeight == 0 {
		cfg.TouchConfig.HistoryWeight = 0.3
	}
	if cfg.TouchConfig.ExactPct == 0 {
		cfg.TouchConfig.ExactPct = 0.0005
	}
	if cfg.TouchConfig.NearPct == 0 {
		cfg.TouchConfig.NearPct = 0.005
	}
	if cfg.TouchConfig.VolumeBoostMax == 0 {
		cfg.TouchConfig.VolumeBoostMax = 0.20
	}

	if cfg.ConsensusConfig.GammaWeight == 0 {
		cfg.ConsensusConfig.GammaWeight = 0.4
	}
	if cfg.ConsensusConfig.TouchWeight == 0 {
		cfg.ConsensusConfig.TouchWeight = 0.4
	}
	if cfg.ConsensusConfig.VolumeWeight == 0 {
		cfg.ConsensusConfig.VolumeWeight = 0.2
	}
	if cfg.ConsensusConfig.MinConsensus == 0 {
		cfg.ConsensusConfig.MinConsensus = 70
	}
	if cfg.ConsensusConfig.MaxNodeDistance == 0 {
		cfg.ConsensusConfig.MaxNodeDistance = 50
	}
	if cfg.ConsensusConfig.StopFraction == 0 {
		cfg.ConsensusConfig.StopFraction = 0.5
	}
	if cfg.ConsensusConfig.MaxPositionFraction == 0 {
		cfg.ConsensusConfig.MaxPositionFraction = 0.10
	}

	if cfg.SchedulerConfig.IntervalSeconds == 0 {
		cfg.SchedulerConfig.IntervalSeconds = 60
	}

	if cfg.MonitorConfig.TouchPct == 0 {
		cfg.MonitorConfig.TouchPct = 0.001
	}
	if cfg.MonitorConfig.VolumeConfirmRatio == 0 {
		cfg.MonitorConfig.VolumeConfirmRatio = 1.5
	}
	if cfg.MonitorConfig.OutcomeWindowSeconds == 0 {
		cfg.MonitorConfig.OutcomeWindowSeconds = 300
	}
	if cfg.MonitorConfig.OutcomeMovePct == 0 {
		cfg.MonitorConfig.OutcomeMovePct = 0.003
	}

	if cfg.ProviderConfig.RequestLimit == 0 {
		cfg.ProviderConfig.RequestLimit = 60
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}

	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}

	if cfg.AuthConfig.AccessTokenDuration == 0 {
		cfg.AuthConfig.AccessTokenDuration = 24 * time.Hour
	}
	if cfg.AuthConfig.OperatorUser == "" {
		cfg.AuthConfig.OperatorUser = "operator"
	}

	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
