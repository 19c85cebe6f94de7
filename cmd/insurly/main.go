// insurly: Voice agent for auto insurance claim intake
// Bridges Twilio phone calls to the OpenAI Realtime API and walks callers
// through a scripted claim questionnaire.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/insurly/go-insurly/internal/config"
	"github.com/insurly/go-insurly/internal/log"
	"github.com/insurly/go-insurly/pkg/call"
	"github.com/insurly/go-insurly/pkg/transcript"
)

var (
	version = "1.0.0"
	port    = flag.String("port", config.DefaultPort, "HTTP server port")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Override from environment
	if envPort := os.Getenv("PORT"); envPort != "" {
		*port = envPort
	}
	if *debug {
		log.Init("debug")
	} else {
		log.Init(config.LogLevel())
	}

	apiKey := config.OpenAIKeyRequired()

	fmt.Println()
	fmt.Println("📞 Insurly v" + version)
	fmt.Println("   Auto insurance claim intake over the phone")
	fmt.Println()

	app := fiber.New(fiber.Config{
		AppName:               "insurly",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(logger.New())
	}

	transcripts := transcript.NewWriter(config.TranscriptFile())
	hub := call.NewHub(call.Config{OpenAIKey: apiKey}, transcripts)

	// WebSocket media-stream route
	hub.RegisterRoutes(app)

	// API routes
	api := app.Group("/api")
	hub.RegisterAPIRoutes(api)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Twilio Media Stream Server is running!"})
	})

	// Twilio hits this webhook when a call comes in; the TwiML response
	// tells it to open a media stream back to this host.
	incomingCall := func(c *fiber.Ctx) error {
		host := c.Get("Host")
		if host == "" {
			host = "localhost:" + *port
		}
		twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="wss://%s/media-stream" />
    </Connect>
</Response>`, host)
		c.Type("xml")
		return c.SendString(twiml)
	}
	app.Get("/incoming-call", incomingCall)
	app.Post("/incoming-call", incomingCall)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version,
			"calls":   hub.CallCount(),
		})
	})

	go func() {
		addr := ":" + *port
		log.Info("starting server", "addr", addr)
		log.Info("endpoints",
			"incoming_call", "http://localhost:"+*port+"/incoming-call",
			"media_stream", "ws://localhost:"+*port+"/media-stream",
			"health", "http://localhost:"+*port+"/health")

		if err := app.Listen(addr); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
}
