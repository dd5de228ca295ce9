package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	AI        AIConfig
	Grading   GradingConfig   `mapstructure:"grading"`
	Session   SessionConfig   `mapstructure:"session"`
	Blueprint BlueprintConfig `mapstructure:"blueprint"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig OpenAI 兼容接口，用于语义判题和主观题评分
type AIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	GradeTimeout  time.Duration `mapstructure:"grade_timeout"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type LogConfig struct {
	File string `mapstructure:"file"`
}

type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	Path      string // sqlite 文件路径
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioSecure   bool   `mapstructure:"minio_secure"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// SectionConfig 按题号区间划分的题型分区
// FreeResponse 为 true 的分区走两阶段主观题评分，PassThreshold 为该题型的及格阈值（score > threshold 判为正确）
type SectionConfig struct {
	Name             string  `mapstructure:"name"`
	From             int     `mapstructure:"from"`
	To               int     `mapstructure:"to"`
	FreeResponse     bool    `mapstructure:"free_response"`
	PassThreshold    float64 `mapstructure:"pass_threshold"`
	ProvisionalScore float64 `mapstructure:"provisional_score"`
	MaxScore         float64 `mapstructure:"max_score"`
}

type GradingConfig struct {
	Workers     int             `mapstructure:"workers"`
	QueueSize   int             `mapstructure:"queue_size"`
	SettleDelay time.Duration   `mapstructure:"settle_delay"`
	Sections    []SectionConfig `mapstructure:"sections"`
}

type SessionConfig struct {
	PracticeLimit int           `mapstructure:"practice_limit"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StateTTL      time.Duration `mapstructure:"state_ttl"`
}

// BlueprintConfig 固定试卷结构：1..ProblemCount 加上应用题子块
type BlueprintConfig struct {
	ProblemCount    int           `mapstructure:"problem_count"`
	AppliedProblems []int         `mapstructure:"applied_problems"`
	Duration        time.Duration `mapstructure:"duration"`
}

// Slots 返回试卷所有题位，按题号顺序
func (b BlueprintConfig) Slots() []int {
	slots := make([]int, 0, b.ProblemCount+len(b.AppliedProblems))
	seen := make(map[int]bool)
	for i := 1; i <= b.ProblemCount; i++ {
		slots = append(slots, i)
		seen[i] = true
	}
	for _, n := range b.AppliedProblems {
		if !seen[n] {
			slots = append(slots, n)
			seen[n] = true
		}
	}
	return slots
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.driver", "mysql")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)
	viper.SetDefault("log.file", "logs/app.log")
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "uploads")
	viper.SetDefault("ai.verify_timeout", "8s")
	viper.SetDefault("ai.grade_timeout", "90s")
	viper.SetDefault("grading.workers", 4)
	viper.SetDefault("grading.queue_size", 64)
	viper.SetDefault("grading.settle_delay", "3s")
	viper.SetDefault("session.practice_limit", 20)
	viper.SetDefault("session.sweep_interval", "15s")
	viper.SetDefault("session.state_ttl", "24h")
	viper.SetDefault("blueprint.problem_count", 19)
	viper.SetDefault("blueprint.duration", "235m")
	viper.SetDefault("events.exchange", "exam_prep.events")
	viper.SetDefault("rate_limit.max_requests", 600)
	viper.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EXAM_PREP")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.driver", "DATABASE_DRIVER")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")
	viper.BindEnv("database.path", "DATABASE_PATH")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("server.port", "SERVER_PORT")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Events
	viper.BindEnv("events.enabled", "EVENTS_ENABLED")
	viper.BindEnv("events.amqp_url", "AMQP_URL")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

// Validate 校验分区配置与生产环境密钥
func (c *Config) Validate() error {
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	for i, s := range c.Grading.Sections {
		if s.Name == "" {
			return fmt.Errorf("grading.sections[%d]: name is required", i)
		}
		if s.From <= 0 || s.To < s.From {
			return fmt.Errorf("grading.sections[%d] (%s): invalid range %d-%d", i, s.Name, s.From, s.To)
		}
		for j := 0; j < i; j++ {
			o := c.Grading.Sections[j]
			if s.From <= o.To && o.From <= s.To {
				return fmt.Errorf("grading.sections %s and %s overlap", o.Name, s.Name)
			}
		}
	}
	return nil
}
