package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	appdefaults "github.com/saker-ai/speech-uplink/config"

	"github.com/saker-ai/speech-uplink/internal/logger"
	"github.com/saker-ai/speech-uplink/pkg/audio"
	"github.com/spf13/viper"
)

const envPrefix = "uplink"

// ServerConfig is the listen address split into parts.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// CaptureConfig holds the pipeline settings applied to every capture session.
type CaptureConfig struct {
	TargetSampleRate    int    `mapstructure:"target_sample_rate"`
	BufferCapacity      int    `mapstructure:"buffer_capacity"`
	FlushPartialOnClose bool   `mapstructure:"flush_partial_on_close"`
	Resampler           string `mapstructure:"resampler"`
	QueueDepth          int    `mapstructure:"queue_depth"`
	MaxSourceSampleRate int    `mapstructure:"max_source_sample_rate"`
	// MaxMessageBytes caps one inbound websocket message.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

// PipelineConfig builds the audio pipeline configuration for a stream captured at sourceRate.
func (c CaptureConfig) PipelineConfig(sourceRate float64) audio.Config {
	return audio.Config{
		SourceSampleRate:    sourceRate,
		TargetSampleRate:    float64(c.TargetSampleRate),
		BufferCapacity:      c.BufferCapacity,
		FlushPartialOnClose: c.FlushPartialOnClose,
		Resampler:           c.Resampler,
	}
}

// UplinkConfig describes the remote speech service.
type UplinkConfig struct {
	BackendURL      string        `mapstructure:"backend_url"`
	ProtocolVersion int           `mapstructure:"protocol_version"`
	AudioFormat     string        `mapstructure:"audio_format"`
	FrameDuration   int           `mapstructure:"frame_duration"`
	DeviceID        string        `mapstructure:"device_id"`
	ClientID        string        `mapstructure:"client_id"`
	AccessToken     string        `mapstructure:"access_token"`
	HelloTimeout    time.Duration `mapstructure:"hello_timeout"`
}

// Enabled reports whether chunks should be forwarded to a remote service.
func (u UplinkConfig) Enabled() bool {
	return strings.TrimSpace(u.BackendURL) != ""
}

// RecordingConfig controls per-session WAV recordings.
type RecordingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Config is the full service configuration.
type Config struct {
	RootDir     string          `mapstructure:"-"`
	HTTPAddr    string          `mapstructure:"http_addr"`
	TLSCertPath string          `mapstructure:"tls_cert_path"`
	TLSKeyPath  string          `mapstructure:"tls_key_path"`
	TLSRequired bool            `mapstructure:"tls_required"`
	TLSDisable  bool            `mapstructure:"tls_disable"`
	Server      ServerConfig    `mapstructure:"server"`
	Capture     CaptureConfig   `mapstructure:"capture"`
	Uplink      UplinkConfig    `mapstructure:"uplink"`
	Recording   RecordingConfig `mapstructure:"recording"`
	ProfilesDir string          `mapstructure:"profiles_dir"`
	Log         logger.Config   `mapstructure:"log"`
}

// Load reads the embedded defaults, then conf.yaml from the root directory, then UPLINK_* env overrides.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}

	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	v.SetConfigName("conf")
	v.AddConfigPath(rootDir)

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}
	return finish(v, rootDir)
}

// LoadConfig loads an explicit config file. An empty path falls back to Load.
func LoadConfig(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}

	rootDir := strings.TrimSpace(os.Getenv("UPLINK_ROOT_DIR"))
	if rootDir == "" {
		rootDir = filepath.Dir(absPath)
		if filepath.Base(rootDir) == "config" {
			rootDir = filepath.Dir(rootDir)
		}
	}

	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	v.SetConfigFile(absPath)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, err
	}
	return finish(v, rootDir)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return nil, fmt.Errorf("load embedded config: %w", err)
	}

	v.SetDefault("http_addr", "")
	v.SetDefault("tls_required", false)
	v.SetDefault("tls_disable", true)
	v.SetDefault("tls_cert_path", "")
	v.SetDefault("tls_key_path", "")
	v.SetDefault("capture.target_sample_rate", 16000)
	v.SetDefault("capture.buffer_capacity", audio.DefaultBufferCapacity)
	v.SetDefault("capture.flush_partial_on_close", false)
	v.SetDefault("capture.resampler", audio.ResamplerLinear)
	v.SetDefault("capture.queue_depth", audio.DefaultQueueDepth)
	v.SetDefault("capture.max_source_sample_rate", 384000)
	v.SetDefault("capture.max_message_bytes", 1<<20)
	v.SetDefault("uplink.protocol_version", 1)
	v.SetDefault("uplink.audio_format", "pcm16")
	v.SetDefault("uplink.frame_duration", 20)
	v.SetDefault("uplink.hello_timeout", "5s")
	v.SetDefault("recording.enabled", false)
	v.SetDefault("recording.dir", "./data/recordings")
	v.SetDefault("profiles_dir", "profiles")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "speech-uplink.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func finish(v *viper.Viper, rootDir string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail on the first capture session.
func (c Config) Validate() error {
	if c.Capture.MaxSourceSampleRate <= 0 {
		return fmt.Errorf("capture.max_source_sample_rate %d: %w", c.Capture.MaxSourceSampleRate, audio.ErrInvalidSampleRate)
	}
	if c.Capture.MaxMessageBytes <= 0 {
		return fmt.Errorf("capture.max_message_bytes %d must be positive", c.Capture.MaxMessageBytes)
	}
	if c.Capture.QueueDepth <= 0 {
		return fmt.Errorf("capture.queue_depth %d: %w", c.Capture.QueueDepth, audio.ErrInvalidCapacity)
	}
	pipelineCfg := c.Capture.PipelineConfig(float64(c.Capture.TargetSampleRate)).WithDefaults()
	if err := pipelineCfg.Validate(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	switch c.Uplink.AudioFormat {
	case "pcm16":
	case "opus":
		if !audio.OpusSupportsRate(c.Capture.TargetSampleRate) {
			return fmt.Errorf("uplink opus at %d Hz: %w", c.Capture.TargetSampleRate, audio.ErrUnsupportedOpusRate)
		}
	default:
		return fmt.Errorf("uplink.audio_format %q is not supported", c.Uplink.AudioFormat)
	}
	return nil
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	host := cfg.Server.Host
	port := cfg.Server.Port
	if port == 0 {
		port = 8101
	}
	if host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("UPLINK_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	cfg.ProfilesDir = resolvePath(cfg.RootDir, cfg.ProfilesDir, "profiles")
	cfg.Recording.Dir = resolvePath(cfg.RootDir, cfg.Recording.Dir, filepath.Join("data", "recordings"))
	cfg.Log.File.Path = resolvePath(cfg.RootDir, cfg.Log.File.Path, filepath.Join("data", "logs"))
	cfg.TLSCertPath = resolvePath(cfg.RootDir, cfg.TLSCertPath, filepath.Join("certs", "server.crt"))
	cfg.TLSKeyPath = resolvePath(cfg.RootDir, cfg.TLSKeyPath, filepath.Join("certs", "server.key"))
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
