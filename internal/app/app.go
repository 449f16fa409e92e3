package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	adpsvc "talentgate-backend/internal/application/adaptive"
	"talentgate-backend/internal/application/answers"
	attsvc "talentgate-backend/internal/application/attempts"
	invsvc "talentgate-backend/internal/application/invitations"
	"talentgate-backend/internal/application/questionsets"
	"talentgate-backend/internal/application/scoring"
	ttsvc "talentgate-backend/internal/application/timedtest"
	"talentgate-backend/internal/application/voice"
	"talentgate-backend/internal/config"
	"talentgate-backend/internal/infrastructure/database"
	"talentgate-backend/internal/infrastructure/probe"
	"talentgate-backend/internal/infrastructure/queue"
	"talentgate-backend/internal/infrastructure/storage"
	"talentgate-backend/internal/infrastructure/stt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// BlobStore is the audio store plus its health probe.
type BlobStore interface {
	voice.BlobStore
	Ping(ctx context.Context) error
}

// Container owns the process-wide clients and the services built on them.
type Container struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client // nil when REDIS_URL is unset
	Queue  queue.Queue
	Blobs  BlobStore

	Questions   questionsets.Resolver
	Invitations *invsvc.Service
	Answers     *answers.Service
	Attempts    *attsvc.Service
	TimedTest   *ttsvc.Service
	Voice       *voice.Service
	Adaptive    *adpsvc.Service
}

// GormPinger adapts a gorm handle to the health DBPinger.
type GormPinger struct {
	DB *gorm.DB
}

func (g GormPinger) Ping() error {
	if g.DB == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// New opens every dependency named by cfg and wires the services. Close
// releases what New opened.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	c := &Container{Config: cfg, DB: db}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		c.Redis = redis.NewClient(opt)
	}

	q, err := queue.New(ctx, queue.Config{
		Backend:     cfg.QueueBackend,
		Name:        cfg.QueueName,
		Redis:       c.Redis,
		RedisURL:    cfg.RedisURL,
		RabbitMQURL: cfg.RabbitMQURL,
		Workers:     cfg.WorkerCount,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("queue: %w", err)
	}
	c.Queue = q

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	c.Blobs = blobs

	transcriber, err := newTranscriber(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("stt: %w", err)
	}

	c.wire(cfg, transcriber)
	return c, nil
}

func (c *Container) wire(cfg *config.Config, transcriber voice.Transcriber) {
	catalog := questionsets.NewCatalog()
	c.Questions = catalog

	c.Invitations = &invsvc.Service{DB: c.DB, Questions: catalog, HashKey: []byte(cfg.InvitationHashKey)}
	c.Answers = &answers.Service{DB: c.DB, Scorer: scoring.Heuristic{}}
	c.Attempts = &attsvc.Service{DB: c.DB}
	c.TimedTest = &ttsvc.Service{DB: c.DB, Scorer: scoring.Heuristic{}, TTL: cfg.TimedTestTTL}
	c.Voice = &voice.Service{
		DB:           c.DB,
		Invitations:  c.Invitations,
		Answers:      c.Answers,
		Blobs:        c.Blobs,
		Probe:        probe.NewFFProbe(cfg.FFProbePath),
		STT:          transcriber,
		Queue:        c.Queue,
		MinDuration:  time.Duration(cfg.MinAudioDurationMs) * time.Millisecond,
		MaxDuration:  time.Duration(cfg.MaxAudioDurationS) * time.Second,
		StreamSecret: []byte(cfg.VoiceTokenSecret),
		StreamTTL:    cfg.VoiceTokenTTL,
	}

	workflow, ok := cfg.Workflows["adaptive"]
	if !ok {
		workflow = config.DefaultAdaptiveWorkflow()
	}
	c.Adaptive = &adpsvc.Service{
		DB:         c.DB,
		Answers:    c.Answers,
		Questions:  catalog,
		Classifier: adpsvc.KeywordClassifier{},
		Scorer:     adpsvc.HeuristicCapabilityScorer{},
		Workflow:   workflow,
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		return storage.NewMinio(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "", "local":
		return storage.NewLocal(cfg.LocalStorageDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newTranscriber returns nil when the selected provider has no API key; the
// API still accepts uploads and transcriptions fail until one is set.
func newTranscriber(ctx context.Context, cfg *config.Config) (voice.Transcriber, error) {
	switch cfg.STTProvider {
	case "", "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Warn().Msg("GEMINI_API_KEY not set, transcription disabled")
			return nil, nil
		}
		return stt.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "deepgram":
		if cfg.DeepgramAPIKey == "" {
			log.Warn().Msg("DEEPGRAM_API_KEY not set, transcription disabled")
			return nil, nil
		}
		return stt.NewDeepgram(cfg.DeepgramAPIKey)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STTProvider)
	}
}

// TranscriptionHandler feeds queued transcription ids to the voice service.
// Malformed ids are dropped rather than retried.
func (c *Container) TranscriptionHandler() queue.Handler {
	return func(ctx context.Context, taskID string) error {
		id, err := uuid.Parse(taskID)
		if err != nil {
			log.Warn().Str("task_id", taskID).Msg("dropping malformed transcription task")
			return nil
		}
		return c.Voice.Transcribe(ctx, id)
	}
}

// Close releases the queue, Redis and database handles.
func (c *Container) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			log.Warn().Err(err).Msg("close queue")
		}
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
