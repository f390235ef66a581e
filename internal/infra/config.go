package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"reelgen/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	PlannerProvider string
	GenAIAPIKey     string
	GenAIModel      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIOrg       string
	OpenAIModel     string

	ImageProvider      string
	QwenAPIKey         string
	QwenBaseURL        string
	QwenModel          string
	QwenEditModel      string
	VideoFrameWidth    int
	VideoFrameHeight   int
	VideoProvider      string
	VeoModel           string
	VideoSteps         int
	VideoGuidance      float64
	SpeechProvider     string
	TTSModel           string
	TTSVoice           string
	TranscribeProvider string
	TranscribeModel    string
	ModelServerURL     string

	FFmpegPath  string
	FFprobePath string

	StageTimeouts  StageTimeouts
	RetryAttempts  int
	RetryBaseDelay time.Duration

	TrendSource         string
	PromptTemplatesPath string
	LedgerDSN           string
	GeoIPDBPath         string
	JWTSecret           string
	CORSOrigins         []string
	MaxUploadBytes      int64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// StageTimeouts bounds each external call made by a pipeline run.
type StageTimeouts struct {
	Transcribe time.Duration
	Plan       time.Duration
	Image      time.Duration
	Video      time.Duration
	Speech     time.Duration
	Compose    time.Duration
}

const (
	ProviderGemini      = "gemini"
	ProviderOpenAI      = "openai"
	ProviderQwen        = "qwen"
	ProviderVeo         = "veo"
	ProviderModelServer = "modelserver"
)

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Missing credentials are reported as
// domain.ErrConfiguration.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		PlannerProvider:    strings.ToLower(getEnv("PLANNER_PROVIDER", ProviderGemini)),
		GenAIAPIKey:        strings.TrimSpace(os.Getenv("GENAI_API_KEY")),
		GenAIModel:         getEnv("GENAI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:          os.Getenv("OPENAI_ORG"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ImageProvider:      strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderQwen)),
		QwenAPIKey:         strings.TrimSpace(os.Getenv("QWEN_API_KEY")),
		QwenBaseURL:        getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenModel:          getEnv("QWEN_MODEL", "qwen-image-plus"),
		QwenEditModel:      getEnv("QWEN_EDIT_MODEL", "qwen-image-edit"),
		VideoFrameWidth:    getEnvInt("VIDEO_FRAME_WIDTH", 720),
		VideoFrameHeight:   getEnvInt("VIDEO_FRAME_HEIGHT", 480),
		VideoProvider:      strings.ToLower(getEnv("VIDEO_PROVIDER", ProviderVeo)),
		VeoModel:           getEnv("VEO_MODEL", "veo-2.0-generate-001"),
		VideoSteps:         getEnvInt("VIDEO_INFERENCE_STEPS", 50),
		VideoGuidance:      getEnvFloat("VIDEO_GUIDANCE_SCALE", 6.0),
		SpeechProvider:     strings.ToLower(getEnv("SPEECH_PROVIDER", ProviderOpenAI)),
		TTSModel:           getEnv("TTS_MODEL", "gpt-4o-mini-tts"),
		TTSVoice:           getEnv("TTS_VOICE", "alloy"),
		TranscribeProvider: strings.ToLower(getEnv("TRANSCRIBE_PROVIDER", ProviderOpenAI)),
		TranscribeModel:    getEnv("TRANSCRIBE_MODEL", "whisper-1"),
		ModelServerURL:     strings.TrimRight(os.Getenv("MODEL_SERVER_URL"), "/"),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		StageTimeouts: StageTimeouts{
			Transcribe: seconds("TRANSCRIBE_TIMEOUT_SECONDS", 60),
			Plan:       seconds("PLAN_TIMEOUT_SECONDS", 60),
			Image:      seconds("IMAGE_TIMEOUT_SECONDS", 120),
			Video:      seconds("VIDEO_TIMEOUT_SECONDS", 600),
			Speech:     seconds("SPEECH_TIMEOUT_SECONDS", 120),
			Compose:    seconds("COMPOSE_TIMEOUT_SECONDS", 120),
		},
		RetryAttempts:       getEnvInt("RETRY_ATTEMPTS", 3),
		RetryBaseDelay:      time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)),
		TrendSource:         os.Getenv("TREND_SOURCE"),
		PromptTemplatesPath: os.Getenv("PROMPT_TEMPLATES_PATH"),
		LedgerDSN:           os.Getenv("RUN_LEDGER_DSN"),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CORSOrigins:         splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,
		HTTPReadTimeout:     seconds("HTTP_READ_TIMEOUT_SECONDS", 30),
		HTTPWriteTimeout:    seconds("HTTP_WRITE_TIMEOUT_SECONDS", 900),
		HTTPIdleTimeout:     seconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	switch c.PlannerProvider {
	case ProviderGemini:
		if c.GenAIAPIKey == "" {
			problems = append(problems, "GENAI_API_KEY is required")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required when PLANNER_PROVIDER=openai")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported PLANNER_PROVIDER %q", c.PlannerProvider))
	}

	needModelServer := false
	switch c.ImageProvider {
	case ProviderQwen:
		if c.QwenAPIKey == "" {
			problems = append(problems, "QWEN_API_KEY is required when IMAGE_PROVIDER=qwen")
		}
	case ProviderModelServer:
		needModelServer = true
	default:
		problems = append(problems, fmt.Sprintf("unsupported IMAGE_PROVIDER %q", c.ImageProvider))
	}
	switch c.VideoProvider {
	case ProviderVeo:
		if c.GenAIAPIKey == "" {
			problems = append(problems, "GENAI_API_KEY is required when VIDEO_PROVIDER=veo")
		}
	case ProviderModelServer:
		needModelServer = true
	default:
		problems = append(problems, fmt.Sprintf("unsupported VIDEO_PROVIDER %q", c.VideoProvider))
	}
	for name, provider := range map[string]string{"SPEECH_PROVIDER": c.SpeechProvider, "TRANSCRIBE_PROVIDER": c.TranscribeProvider} {
		switch provider {
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				problems = append(problems, fmt.Sprintf("OPENAI_API_KEY is required when %s=openai", name))
			}
		case ProviderModelServer:
			needModelServer = true
		default:
			problems = append(problems, fmt.Sprintf("unsupported %s %q", name, provider))
		}
	}
	if needModelServer {
		if c.ModelServerURL == "" {
			problems = append(problems, "MODEL_SERVER_URL is required for modelserver providers")
		} else if u, err := url.Parse(c.ModelServerURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("MODEL_SERVER_URL %q is not an absolute url", c.ModelServerURL))
		}
	}
	if c.VideoFrameWidth <= 0 || c.VideoFrameHeight <= 0 {
		problems = append(problems, "VIDEO_FRAME_WIDTH and VIDEO_FRAME_HEIGHT must be positive")
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 1
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func seconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
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
