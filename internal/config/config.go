// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type RuntimeConfig struct {
	Dev bool
}

type RateLimitConfig struct {
	Messages int           `yaml:"messages"` // per window, 0 disables
	Window   time.Duration `yaml:"window"`
}

type BotConfig struct {
	Token             string          `yaml:"token" env:"BOT_TOKEN" validate:"required"`
	Mode              string          `yaml:"mode"` // polling only for now
	Username          string          `yaml:"username"`
	Workers           int             `yaml:"workers"` // polling workers
	AdminIDs          []int64         `yaml:"admin_ids" env:"ADMIN_IDS" envSeparator:","`
	FreeMessagesLimit int             `yaml:"free_messages_limit" env:"FREE_MESSAGES_LIMIT" validate:"min=0"` // 0 = unlimited
	VoiceReply        string          `yaml:"voice_reply" env:"VOICE_RESPONSE_MODE" validate:"oneof=never mirror always"`
	Language          string          `yaml:"language"`            // i18n locale
	VocabularyLimit   int             `yaml:"vocabulary_limit"`    // entries shown by /vocab
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	// UpdateTimeout bounds one update and the turn lock. It is raised at
	// startup to the full retry budget of the AI key pools.
	UpdateTimeout     time.Duration   `yaml:"update_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"` // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port" env:"PORT"` // /health, /ready, /metrics; 0 disables
}

type DatabaseConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL" validate:"required"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"REDIS_URL"` // optional; empty falls back to in-process cache and limits
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type RetryConfig struct {
	BaseDelay             time.Duration `yaml:"base_delay"`
	Jitter                time.Duration `yaml:"jitter"`
	AttemptsPerCredential int           `yaml:"attempts_per_key" validate:"min=1"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider" env:"AI_PROVIDER" validate:"oneof=groq gemini"`
	GroqKeys        KeyList       `yaml:"groq_keys" env:"GROQ_API_KEYS"`
	GroqBaseURL     string        `yaml:"groq_base_url"`
	GeminiKeys      KeyList       `yaml:"gemini_keys" env:"GEMINI_API_KEYS"`
	GeminiModel     string        `yaml:"gemini_model"`
	TranscribeModel string        `yaml:"transcribe_model"`
	CorrectionModel string        `yaml:"correction_model"`
	DialogueModel   string        `yaml:"dialogue_model"`
	Language        string        `yaml:"language"` // transcription hint
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	Retry           RetryConfig   `yaml:"retry"`
}

type TTSConfig struct {
	Provider    string        `yaml:"provider" env:"TTS_PROVIDER" validate:"oneof=piper groq none"`
	PiperURL    string        `yaml:"piper_url" env:"PIPER_TTS_URL"`
	PiperVoice  string        `yaml:"piper_voice"`
	GroqModel   string        `yaml:"groq_model"`
	GroqVoice   string        `yaml:"groq_voice"`
	FFmpegPath  string        `yaml:"ffmpeg_path"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxChars    int           `yaml:"max_chars"`
	SampleRate  int           `yaml:"sample_rate"`
	OpusBitrate string        `yaml:"opus_bitrate"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	TTS      TTSConfig      `yaml:"tts"`

	Runtime RuntimeConfig `yaml:"-"`
}

// KeyList accepts either a YAML sequence or a comma separated scalar,
// so `groq_keys: ${GROQ_API_KEYS}` works with a CSV environment variable.
type KeyList []string

func (k *KeyList) UnmarshalYAML(value *yaml.Node) error {
	var raw []string
	switch value.Kind {
	case yaml.ScalarNode:
		raw = strings.Split(value.Value, ",")
	case yaml.SequenceNode:
		if err := value.Decode(&raw); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: expected list or comma separated string", value.Line)
	}
	*k = compactKeys(raw)
	return nil
}

// UnmarshalText is used for environment overrides (GROQ_API_KEYS=k1,k2).
func (k *KeyList) UnmarshalText(text []byte) error {
	*k = compactKeys(strings.Split(string(text), ","))
	return nil
}

func compactKeys(raw []string) KeyList {
	out := make(KeyList, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func LoadConfig() (*Config, error) {
	var configPath, envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file loaded before the config")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// A missing .env is fine; real environment variables win over it.
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return Load(configPath, dev)
}

// Load reads the YAML file, expands ${VAR} references, applies environment
// overrides and defaults, then validates. A missing file is allowed so the bot
// can run from environment variables alone.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.VoiceReply == "" {
		cfg.Bot.VoiceReply = "mirror"
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Bot.VocabularyLimit <= 0 {
		cfg.Bot.VocabularyLimit = 20
	}
	if cfg.Bot.UpdateTimeout <= 0 {
		cfg.Bot.UpdateTimeout = 2 * time.Minute
	}
	if cfg.Bot.RateLimit.Window <= 0 {
		cfg.Bot.RateLimit.Window = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "groq"
	}
	if cfg.AI.GroqBaseURL == "" {
		cfg.AI.GroqBaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.TranscribeModel == "" {
		cfg.AI.TranscribeModel = "whisper-large-v3-turbo"
	}
	if cfg.AI.CorrectionModel == "" {
		cfg.AI.CorrectionModel = "openai/gpt-oss-120b"
	}
	if cfg.AI.DialogueModel == "" {
		cfg.AI.DialogueModel = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if cfg.AI.Language == "" {
		cfg.AI.Language = "en"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.Retry.BaseDelay <= 0 {
		cfg.AI.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.AI.Retry.Jitter == 0 {
		cfg.AI.Retry.Jitter = time.Second
	}
	if cfg.AI.Retry.AttemptsPerCredential <= 0 {
		cfg.AI.Retry.AttemptsPerCredential = 2
	}

	if cfg.TTS.Provider == "" {
		cfg.TTS.Provider = "piper"
	}
	if cfg.TTS.PiperURL == "" {
		cfg.TTS.PiperURL = "http://localhost:8000"
	}
	if cfg.TTS.PiperVoice == "" {
		cfg.TTS.PiperVoice = "amy"
	}
	if cfg.TTS.GroqModel == "" {
		cfg.TTS.GroqModel = "playai-tts"
	}
	if cfg.TTS.GroqVoice == "" {
		cfg.TTS.GroqVoice = "Arista-PlayAI"
	}
	if cfg.TTS.FFmpegPath == "" {
		cfg.TTS.FFmpegPath = "ffmpeg"
	}
	if cfg.TTS.Timeout <= 0 {
		cfg.TTS.Timeout = 30 * time.Second
	}
	if cfg.TTS.MaxChars <= 0 {
		cfg.TTS.MaxChars = 1000
	}
	if cfg.TTS.SampleRate <= 0 {
		cfg.TTS.SampleRate = 24000
	}
	if cfg.TTS.OpusBitrate == "" {
		cfg.TTS.OpusBitrate = "32k"
	}
}

// Validate checks the struct tags. An empty key pool is legal:
// every AI call then answers with its fallback.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %s=%s", fe.Namespace(), fe.Value(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
}

// IsAdmin reports whether the Telegram ID is listed in bot.admin_ids.
func (c *Config) IsAdmin(tgID int64) bool {
	return lo.Contains(c.Bot.AdminIDs, tgID)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
