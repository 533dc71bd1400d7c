package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Handlers struct {
	Upload     *UploadHandler
	Evaluation *EvaluationHandler
	Result     *ResultHandler
}

type AppOptions struct {
	BodyLimit     int
	RequestLogger bool
}

// NewApp builds the fiber app with middleware and the /api/v1 routes.
func NewApp(h Handlers, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "CV Screening API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    opts.BodyLimit,
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	if opts.RequestLogger {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + UserIDHeader,
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Use(UserIdentity())
	api.Post("/upload", h.Upload.HandleUpload)
	api.Post("/evaluate", h.Evaluation.HandleEvaluate)
	api.Get("/result/:id", h.Result.HandleGetResult)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "CV Screening API",
			"version": "1.0.0",
			"endpoints": []string{
				"GET /api/v1/health",
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"GET /api/v1/result/:id",
			},
		})
	})

	return app
}
