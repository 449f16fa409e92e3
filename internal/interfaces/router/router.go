package router

import (
	"talentgate-backend/internal/app"
	healthsvc "talentgate-backend/internal/application/health"
	adaptivehandler "talentgate-backend/internal/interfaces/handlers/adaptive"
	attempthandler "talentgate-backend/internal/interfaces/handlers/attempts"
	healthhandler "talentgate-backend/internal/interfaces/handlers/health"
	interviewhandler "talentgate-backend/internal/interfaces/handlers/interviews"
	invhandler "talentgate-backend/internal/interfaces/handlers/invitations"
	timedhandler "talentgate-backend/internal/interfaces/handlers/timedtest"
	voicehandler "talentgate-backend/internal/interfaces/handlers/voice"
	"talentgate-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

const defaultMaxUpload = 25 * 1024 * 1024

// CreateApp builds the Fiber app with global middleware and every route.
func CreateApp(c *app.Container) *fiber.App {
	cfg := c.Config
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}

	application := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		// multipart framing on top of the audio itself
		BodyLimit: maxUpload + 1024*1024,
	})

	application.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	application.Use(middleware.Tracing())
	application.Use(middleware.RouteLogger())
	if c.Redis != nil {
		application.Use(middleware.HealthMarker(c.Redis))
	}

	deps := healthsvc.Deps{Redis: c.Redis, DB: app.GormPinger{DB: c.DB}}
	if c.Queue != nil {
		deps.Queue = c.Queue
	}
	if c.Blobs != nil {
		deps.Storage = c.Blobs
	}
	hh := &healthhandler.Handlers{Deps: deps, HealthAdminKey: cfg.HealthAdminKey}
	application.Get("/health/json", hh.JSON)
	application.Get("/health/errors", hh.Errors)
	application.Get("/health/reset", hh.Reset)

	api := application.Group("/api/v1")
	serviceKey := middleware.RequireServiceKey(cfg.ServiceAPIKey)

	ih := &invhandler.Handlers{Service: c.Invitations}
	api.Post("/invitations/open", ih.Open)
	api.Post("/invitations/check", ih.Check)

	ivh := &interviewhandler.Handlers{Invitations: c.Invitations, Answers: c.Answers, Adaptive: c.Adaptive, QuestionSets: c.Questions}
	interviews := api.Group("/interviews")
	interviews.Get("/questions", ivh.Questions)
	interviews.Post("/answers", ivh.SubmitAnswers)
	interviews.Post("/complete", ivh.Complete)

	vh := &voicehandler.Handlers{Service: c.Voice, MaxUploadBytes: maxUpload}
	voiceGroup := api.Group("/voice")
	voiceGroup.Post("/upload", vh.Upload)
	voiceGroup.Get("/status", vh.Status)
	voiceGroup.Post("/stream-token", vh.StreamToken)
	voiceGroup.Post("/stream-token/verify", serviceKey, vh.VerifyStreamToken)

	th := &timedhandler.Handlers{Service: c.TimedTest}
	timed := api.Group("/timed-test", serviceKey)
	timed.Post("/start", th.Start)
	timed.Post("/submit", th.Submit)
	timed.Get("/status/:candidateId", th.Status)

	ah := &adaptivehandler.Handlers{Service: c.Adaptive}
	adaptive := api.Group("/adaptive", serviceKey)
	adaptive.Post("/phase1/start", ah.StartPhase1)
	adaptive.Post("/phase1/:id/answers", ah.SubmitPhase1Answers)
	adaptive.Post("/phase1/:id/complete", ah.CompletePhase1)
	adaptive.Post("/phase2/start", ah.StartPhase2)
	adaptive.Post("/phase2/:id/answers", ah.SubmitPhase2Answer)
	adaptive.Post("/phase2/:id/complete", ah.CompletePhase2)

	ath := &attempthandler.Handlers{Service: c.Attempts}
	attempts := api.Group("/attempts", serviceKey)
	attempts.Post("/start", ath.Start)
	attempts.Post("/:id/answers", ath.RecordAnswer)
	attempts.Post("/:id/finish", ath.Finish)
	attempts.Get("/", ath.List)

	return application
}
