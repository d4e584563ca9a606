package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Cache       CacheConfig      `yaml:"cache"`
	Synth       SynthConfig      `yaml:"synth"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	Hub         HubConfig        `yaml:"hub"`
	UsageLog    UsageLogConfig   `yaml:"usage_log"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type CacheConfig struct {
	Backend        string `yaml:"backend"` // memory, redis
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	KeyPrefix      string `yaml:"key_prefix"`
	TTLDays        int    `yaml:"ttl_days"`
	MaxAudioSizeMB int    `yaml:"max_audio_size_mb"`
}

// VoiceModel maps a voice identity to its on-disk model file.
type VoiceModel struct {
	ID       string `yaml:"id"`
	Language string `yaml:"language"`
	Model    string `yaml:"model"`
}

type SynthConfig struct {
	Mode            string       `yaml:"mode"` // mock, exec
	Command         string       `yaml:"command"`
	FallbackCommand string       `yaml:"fallback_command"`
	ModelDir        string       `yaml:"model_dir"`
	DefaultVoice    string       `yaml:"default_voice"`
	Voices          []VoiceModel `yaml:"voices"`
	SampleRate      int          `yaml:"sample_rate"`
	TimeoutMS       int          `yaml:"timeout_ms"`
	ChunkDurationMS int          `yaml:"chunk_duration_ms"`
}

type TranscribeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type HubConfig struct {
	AuthToken       string `yaml:"auth_token"`
	SendBuffer      int    `yaml:"send_buffer"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`
	WriteTimeoutMS  int    `yaml:"write_timeout_ms"`
}

type UsageLogConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, session, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		ServiceName: "voiced",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Cache: CacheConfig{
			Backend:        "memory",
			RedisAddr:      "localhost:6379",
			KeyPrefix:      "voice",
			TTLDays:        7,
			MaxAudioSizeMB: 10,
		},
		Synth: SynthConfig{
			Mode:            "mock",
			ModelDir:        "./models",
			DefaultVoice:    "en_US-amy-medium",
			SampleRate:      22050,
			TimeoutMS:       5000,
			ChunkDurationMS: 400,
			Voices: []VoiceModel{
				{ID: "en_US-amy-medium", Language: "en", Model: "en_US-amy-medium.onnx"},
				{ID: "fr_FR-siwis-medium", Language: "fr", Model: "fr_FR-siwis-medium.onnx"},
				{ID: "es_ES-davefx-medium", Language: "es", Model: "es_ES-davefx-medium.onnx"},
			},
		},
		Transcribe: TranscribeConfig{
			Enabled:    true,
			Mode:       "mock",
			Language:   "en",
			SampleRate: 16000,
			Channels:   1,
			TimeoutMS:  30000,
		},
		Hub: HubConfig{
			SendBuffer:      32,
			MaxMessageBytes: 1 << 20,
			WriteTimeoutMS:  10000,
		},
		UsageLog: UsageLogConfig{
			Path:          "./data/voiced-usage.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "VOICED_SERVICE_NAME")
	overrideString(&cfg.Environment, "VOICED_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOICED_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOICED_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOICED_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICED_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICED_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOICED_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOICED_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOICED_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOICED_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOICED_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOICED_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOICED_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOICED_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOICED_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Cache.Backend, "VOICED_CACHE_BACKEND")
	overrideString(&cfg.Cache.RedisAddr, "VOICED_CACHE_REDIS_ADDR")
	overrideString(&cfg.Cache.RedisPassword, "VOICED_CACHE_REDIS_PASSWORD")
	overrideInt(&cfg.Cache.RedisDB, "VOICED_CACHE_REDIS_DB")
	overrideString(&cfg.Cache.KeyPrefix, "VOICED_CACHE_KEY_PREFIX")
	overrideInt(&cfg.Cache.TTLDays, "VOICED_CACHE_TTL_DAYS")
	overrideInt(&cfg.Cache.MaxAudioSizeMB, "VOICED_CACHE_MAX_AUDIO_SIZE_MB")
	overrideString(&cfg.Synth.Mode, "VOICED_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "VOICED_SYNTH_COMMAND")
	overrideString(&cfg.Synth.FallbackCommand, "VOICED_SYNTH_FALLBACK_COMMAND")
	overrideString(&cfg.Synth.ModelDir, "VOICED_SYNTH_MODEL_DIR")
	overrideString(&cfg.Synth.DefaultVoice, "VOICED_SYNTH_DEFAULT_VOICE")
	overrideInt(&cfg.Synth.SampleRate, "VOICED_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.TimeoutMS, "VOICED_SYNTH_TIMEOUT_MS")
	overrideInt(&cfg.Synth.ChunkDurationMS, "VOICED_SYNTH_CHUNK_DURATION_MS")
	overrideBool(&cfg.Transcribe.Enabled, "VOICED_TRANSCRIBE_ENABLED")
	overrideString(&cfg.Transcribe.Mode, "VOICED_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.Command, "VOICED_TRANSCRIBE_COMMAND")
	overrideString(&cfg.Transcribe.Language, "VOICED_TRANSCRIBE_LANGUAGE")
	overrideInt(&cfg.Transcribe.SampleRate, "VOICED_TRANSCRIBE_SAMPLE_RATE")
	overrideInt(&cfg.Transcribe.Channels, "VOICED_TRANSCRIBE_CHANNELS")
	overrideInt(&cfg.Transcribe.TimeoutMS, "VOICED_TRANSCRIBE_TIMEOUT_MS")
	overrideString(&cfg.Hub.AuthToken, "VOICED_HUB_AUTH_TOKEN")
	overrideInt(&cfg.Hub.SendBuffer, "VOICED_HUB_SEND_BUFFER")
	overrideInt(&cfg.Hub.WriteTimeoutMS, "VOICED_HUB_WRITE_TIMEOUT_MS")
	overrideString(&cfg.UsageLog.Path, "VOICED_USAGE_LOG_PATH")
	overrideString(&cfg.UsageLog.RetentionMode, "VOICED_USAGE_LOG_RETENTION_MODE")
	overrideInt(&cfg.UsageLog.RetentionDays, "VOICED_USAGE_LOG_RETENTION_DAYS")
	overrideInt(&cfg.UsageLog.MaxSessions, "VOICED_USAGE_LOG_MAX_SESSIONS")
	overrideBool(&cfg.UsageLog.VacuumOnStart, "VOICED_USAGE_LOG_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return errors.New("cache.backend must be one of memory|redis")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr must be set when backend=redis")
	}
	if cfg.Cache.KeyPrefix == "" {
		return errors.New("cache.key_prefix must not be empty")
	}
	if cfg.Cache.TTLDays <= 0 {
		return errors.New("cache.ttl_days must be positive")
	}
	if cfg.Cache.MaxAudioSizeMB <= 0 {
		return errors.New("cache.max_audio_size_mb must be positive")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.DefaultVoice == "" {
		return errors.New("synth.default_voice must not be empty")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.TimeoutMS <= 0 {
		return errors.New("synth.timeout_ms must be positive")
	}
	if cfg.Transcribe.Enabled {
		switch cfg.Transcribe.Mode {
		case "mock", "exec":
		default:
			return errors.New("transcribe.mode must be one of mock|exec")
		}
		if cfg.Transcribe.Mode == "exec" && cfg.Transcribe.Command == "" {
			return errors.New("transcribe.command must be set when mode=exec")
		}
		if cfg.Transcribe.SampleRate <= 0 {
			return errors.New("transcribe.sample_rate must be positive")
		}
		if cfg.Transcribe.Channels <= 0 {
			return errors.New("transcribe.channels must be positive")
		}
	}
	if cfg.Hub.SendBuffer <= 0 {
		return errors.New("hub.send_buffer must be positive")
	}
	if cfg.UsageLog.Path == "" {
		return errors.New("usage_log.path must not be empty")
	}
	switch cfg.UsageLog.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("usage_log.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.UsageLog.RetentionDays < 0 {
		return errors.New("usage_log.retention_days must be >= 0")
	}
	return nil
}
