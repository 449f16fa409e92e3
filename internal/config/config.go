package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Workflow describes one assessment variant. Variants are data passed to the
// services at construction, not global switches.
type Workflow struct {
	Name                string
	Phase2Enabled       bool
	ScenarioCount       int
	ConfidenceThreshold float64
	TieMargin           float64
}

// Config holds application configuration (env + Viper).
type Config struct {
	Env         string
	Port        string
	LogLevel    string
	LogPretty   bool
	DatabaseURL string
	RedisURL    string

	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	ServiceAPIKey       string // guards candidate-id addressed routes

	InvitationHashKey  string // keys the BLAKE2b hash of invitation tokens
	VoiceTokenSecret   string // HMAC secret for voice gateway tokens
	VoiceTokenTTL      time.Duration
	TimedTestTTL       time.Duration
	MinAudioDurationMs int64
	MaxAudioDurationS  int64
	MaxUploadBytes     int

	StorageBackend  string // minio | local
	LocalStorageDir string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool

	QueueBackend string // redis | rabbitmq | memory
	QueueName    string
	RabbitMQURL  string
	WorkerCount  int
	FFProbePath  string

	STTProvider    string // gemini | deepgram
	GeminiAPIKey   string
	GeminiModel    string
	DeepgramAPIKey string

	Workflows map[string]Workflow
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("TIMED_TEST_TTL", "30m")
	viper.SetDefault("VOICE_TOKEN_TTL", "10m")
	viper.SetDefault("MIN_AUDIO_DURATION_MS", 2000)
	viper.SetDefault("MAX_AUDIO_DURATION_SEC", 120)
	viper.SetDefault("MAX_UPLOAD_BYTES", 25*1024*1024)
	viper.SetDefault("STORAGE_BACKEND", "local")
	viper.SetDefault("LOCAL_STORAGE_DIR", "./data/audio")
	viper.SetDefault("MINIO_BUCKET", "voice-answers")
	viper.SetDefault("QUEUE_BACKEND", "redis")
	viper.SetDefault("QUEUE_NAME", "transcriptions")
	viper.SetDefault("WORKER_COUNT", 2)
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("STT_PROVIDER", "gemini")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	viper.SetDefault("ADAPTIVE_ENABLED", true)
	viper.SetDefault("ADAPTIVE_SCENARIO_COUNT", 8)
	viper.SetDefault("ADAPTIVE_CONFIDENCE_THRESHOLD", 0.6)
	viper.SetDefault("ADAPTIVE_TIE_MARGIN", 0.05)

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL")
	if env == "test" && viper.GetString("DATABASE_URL_TEST") != "" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
		LogPretty:           viper.GetBool("LOG_PRETTY"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		ServiceAPIKey:       viper.GetString("SERVICE_API_KEY"),
		InvitationHashKey:   viper.GetString("INVITATION_HASH_KEY"),
		VoiceTokenSecret:    viper.GetString("VOICE_TOKEN_SECRET"),
		VoiceTokenTTL:       viper.GetDuration("VOICE_TOKEN_TTL"),
		TimedTestTTL:        viper.GetDuration("TIMED_TEST_TTL"),
		MinAudioDurationMs:  viper.GetInt64("MIN_AUDIO_DURATION_MS"),
		MaxAudioDurationS:   viper.GetInt64("MAX_AUDIO_DURATION_SEC"),
		MaxUploadBytes:      viper.GetInt("MAX_UPLOAD_BYTES"),
		StorageBackend:      strings.ToLower(viper.GetString("STORAGE_BACKEND")),
		LocalStorageDir:     viper.GetString("LOCAL_STORAGE_DIR"),
		MinioEndpoint:       viper.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:      viper.GetString("MINIO_ACCESS_KEY_ID"),
		MinioSecretKey:      viper.GetString("MINIO_SECRET_ACCESS_KEY"),
		MinioBucket:         viper.GetString("MINIO_BUCKET"),
		MinioUseSSL:         viper.GetBool("MINIO_USE_SSL"),
		QueueBackend:        strings.ToLower(viper.GetString("QUEUE_BACKEND")),
		QueueName:           viper.GetString("QUEUE_NAME"),
		RabbitMQURL:         viper.GetString("RABBITMQ_URL"),
		WorkerCount:         viper.GetInt("WORKER_COUNT"),
		FFProbePath:         viper.GetString("FFPROBE_PATH"),
		STTProvider:         strings.ToLower(viper.GetString("STT_PROVIDER")),
		GeminiAPIKey:        viper.GetString("GEMINI_API_KEY"),
		GeminiModel:         viper.GetString("GEMINI_MODEL"),
		DeepgramAPIKey:      viper.GetString("DEEPGRAM_API_KEY"),
		Workflows:           loadWorkflows(),
	}, nil
}

func loadWorkflows() map[string]Workflow {
	return map[string]Workflow{
		"standard": {
			Name: "standard",
		},
		"adaptive": {
			Name:                "adaptive",
			Phase2Enabled:       viper.GetBool("ADAPTIVE_ENABLED"),
			ScenarioCount:       viper.GetInt("ADAPTIVE_SCENARIO_COUNT"),
			ConfidenceThreshold: viper.GetFloat64("ADAPTIVE_CONFIDENCE_THRESHOLD"),
			TieMargin:           viper.GetFloat64("ADAPTIVE_TIE_MARGIN"),
		},
	}
}

// DefaultAdaptiveWorkflow is used when no configuration is loaded (tests, CLI).
func DefaultAdaptiveWorkflow() Workflow {
	return Workflow{
		Name:                "adaptive",
		Phase2Enabled:       true,
		ScenarioCount:       8,
		ConfidenceThreshold: 0.6,
		TieMargin:           0.05,
	}
}
