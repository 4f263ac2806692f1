package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SEGPAINT"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Artifact     ArtifactConfig     `mapstructure:"artifact"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// StoreConfig selects the session store backend: "memory" or "redis".
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	MaxPixels    int64    `mapstructure:"max_pixels"`
	UploadDir    string   `mapstructure:"upload_dir"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type ArtifactConfig struct {
	Dir         string `mapstructure:"dir"`
	Format      string `mapstructure:"format"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
}

// SegmentationConfig points at the remote segmentation function. An empty
// endpoint disables it and every request is served by the fallback synthesizer.
type SegmentationConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Token           string        `mapstructure:"token"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	PredictTimeout  time.Duration `mapstructure:"predict_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

// Default returns the built-in defaults with environment overrides applied.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		// defaults always decode; only a malformed env override lands here
		panic(err)
	}
	return cfg
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want memory or redis", c.Store.Backend))
	}
	switch c.Artifact.Format {
	case "png", "jpeg", "webp":
	default:
		errs = append(errs, fmt.Errorf("artifact.format %q: want png, jpeg or webp", c.Artifact.Format))
	}
	if c.Upload.MaxSize <= 0 {
		errs = append(errs, errors.New("upload.max_size must be positive"))
	}
	if c.Upload.MaxPixels < 0 {
		errs = append(errs, errors.New("upload.max_pixels must not be negative"))
	}
	if c.Segmentation.MaxRetries < 0 {
		errs = append(errs, errors.New("segmentation.max_retries must not be negative"))
	}
	if c.Segmentation.GenerateTimeout <= 0 || c.Segmentation.PredictTimeout <= 0 {
		errs = append(errs, errors.New("segmentation timeouts must be positive"))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 6*time.Minute)
	v.SetDefault("server.allow_origins", []string{"http://localhost:5173", "http://localhost:5174", "http://localhost:3000"})

	v.SetDefault("store.backend", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 20*1024*1024)
	v.SetDefault("upload.max_pixels", 40_000_000)
	v.SetDefault("upload.upload_dir", "./uploads")
	v.SetDefault("upload.allowed_types", []string{
		"image/jpeg", "image/jpg", "image/png", "image/gif", "image/bmp", "image/tiff", "image/webp",
	})

	v.SetDefault("artifact.dir", "./uploads")
	v.SetDefault("artifact.format", "png")
	v.SetDefault("artifact.jpeg_quality", 90)

	v.SetDefault("segmentation.endpoint", "")
	v.SetDefault("segmentation.token", "")
	v.SetDefault("segmentation.generate_timeout", 5*time.Minute)
	v.SetDefault("segmentation.predict_timeout", 60*time.Second)
	v.SetDefault("segmentation.max_retries", 0)
	v.SetDefault("segmentation.retry_interval", time.Second)
}
