package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Auth     AuthConfig
	Collab   CollabConfig
	Tracing  TracingConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadMB     int64
	MetricsPort     int
	RateLimitRPS    int
	RateLimitBurst  int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// RedisConfig holds the optional cross-process job-status mirror
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// CollabConfig holds the endpoints of the external AI collaborators
type CollabConfig struct {
	TranscribeURL  string
	TranslateURL   string
	SynthesizeURL  string
	APIKey         string
	RequestTimeout time.Duration
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled        bool
	JaegerEndpoint string
}

// PipelineConfig holds every tuning constant of the audio reconstruction
// pipeline in one place so no component carries magic numbers of its own.
type PipelineConfig struct {
	WorkDir   string
	OutputDir string

	FFmpegPath  string
	FFprobePath string

	PythonPath        string
	SeparationDevice  string
	SeparationTimeout time.Duration
	DefaultModel      string
	DefaultMode       string

	QualityThreshold float64
	EnableFallback   bool

	DefaultBalance float64
	VocalBoost     float64
	VocalGainCap   float64
	MusicDuck      float64
	ClipCeiling    float64

	MinStemBytes  int64
	MinTrackBytes int64

	DefaultSampleRate int
	DefaultChannels   int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "60s")
	viper.SetDefault("server.writeTimeout", "60s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.maxUploadMB", 500)
	viper.SetDefault("server.metricsPort", 9090)
	viper.SetDefault("server.rateLimitRPS", 10)
	viper.SetDefault("server.rateLimitBurst", 20)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "dubber")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.enabled", false)
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtSecret", "")

	// Collaborator defaults
	viper.SetDefault("collab.transcribeURL", "http://localhost:8090/v1/transcribe")
	viper.SetDefault("collab.translateURL", "http://localhost:8090/v1/translate")
	viper.SetDefault("collab.synthesizeURL", "http://localhost:8090/v1/synthesize")
	viper.SetDefault("collab.apiKey", "")
	viper.SetDefault("collab.requestTimeout", "120s")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")

	// Pipeline defaults
	viper.SetDefault("pipeline.workDir", "/tmp/dubber/work")
	viper.SetDefault("pipeline.outputDir", "/tmp/dubber/outputs")
	viper.SetDefault("pipeline.ffmpegPath", "ffmpeg")
	viper.SetDefault("pipeline.ffprobePath", "ffprobe")
	viper.SetDefault("pipeline.pythonPath", "python3")
	viper.SetDefault("pipeline.separationDevice", "cpu")
	viper.SetDefault("pipeline.separationTimeout", "10m")
	viper.SetDefault("pipeline.defaultModel", "htdemucs")
	viper.SetDefault("pipeline.defaultMode", "preserve_music")
	viper.SetDefault("pipeline.qualityThreshold", 0.3)
	viper.SetDefault("pipeline.enableFallback", true)
	viper.SetDefault("pipeline.defaultBalance", 0.8)
	viper.SetDefault("pipeline.vocalBoost", 1.2)
	viper.SetDefault("pipeline.vocalGainCap", 1.5)
	viper.SetDefault("pipeline.musicDuck", 0.7)
	viper.SetDefault("pipeline.clipCeiling", 0.95)
	viper.SetDefault("pipeline.minStemBytes", 10000)
	viper.SetDefault("pipeline.minTrackBytes", 1000)
	viper.SetDefault("pipeline.defaultSampleRate", 24000)
	viper.SetDefault("pipeline.defaultChannels", 1)
}
