package server

import (
	"embed"
	"net/http"
	"time"

	"clawfeed/classify"
	"clawfeed/db"
	"clawfeed/packs"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

//go:embed web/*
var web embed.FS

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// Public base URL used in rendered feeds and OAuth redirects
	BaseURL string

	// API key authorizing digest ingestion and config writes
	APIKey string

	// Google OAuth client credentials; auth is disabled when empty
	GoogleClientID     string
	GoogleClientSecret string

	// Comma separated origins allowed to call the API with credentials
	AllowedOrigins string

	// The store backing all routes
	DB *db.DB

	// Classifier used by the source resolve endpoint
	Classifier *classify.Classifier
}

// api bundles the collaborators the route handlers need.
type api struct {
	store      *db.DB
	classifier *classify.Classifier
	installer  *packs.Installer
	config     *ServerConfig
}

// Returns a fiber.App instance to be used as an HTTP server for clawfeed
func Server(config *ServerConfig) *fiber.App {

	a := &api{
		store:      config.DB,
		classifier: config.Classifier,
		installer:  packs.NewInstaller(config.DB),
		config:     config,
	}

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowHeaders:     "Content-Type, Authorization, Cache-Control",
		AllowCredentials: true,
	}))

	// Resolve the session cookie on every request
	app.Use(a.withUser)

	// Public feed endpoints
	app.Get("/feed/:slug", a.getFeed)

	// Auth
	app.Get("/api/auth/config", a.getAuthConfig)
	app.Get("/api/auth/google", a.googleRedirect)
	app.Get("/api/auth/callback", a.googleCallback)
	app.Get("/api/auth/me", a.getMe)
	app.Post("/api/auth/logout", a.logout)

	// Digests
	app.Get("/api/digests", a.listDigests)
	app.Get("/api/digests/:id", a.getDigest)
	app.Post("/api/digests", a.createDigest)

	// Marks
	app.Get("/api/marks", a.listMarks)
	app.Post("/api/marks", a.createMark)
	app.Delete("/api/marks/:id", a.deleteMark)

	// Backward compatible mark endpoints used by older clients
	app.Post("/mark", a.legacyMark)
	app.Get("/marks", a.legacyMarks)

	// Subscriptions
	app.Get("/api/subscriptions", a.listSubscriptions)
	app.Post("/api/subscriptions", a.subscribe)
	app.Post("/api/subscriptions/bulk", a.bulkSubscribe)
	app.Delete("/api/subscriptions/:id", a.unsubscribe)

	// Sources
	app.Post("/api/sources/resolve", a.resolveSource)
	app.Get("/api/sources", a.listSources)
	app.Get("/api/sources/:id", a.getSource)
	app.Post("/api/sources", a.createSource)
	app.Put("/api/sources/:id", a.updateSource)
	app.Delete("/api/sources/:id", a.deleteSource)

	// Packs
	app.Get("/api/packs", a.listPacks)
	app.Get("/api/packs/:slug", a.getPack)
	app.Post("/api/packs", a.createPack)
	app.Post("/api/packs/:slug/install", a.installPack)
	app.Delete("/api/packs/:id", a.deletePack)

	// Config key/value store
	app.Get("/api/config", a.getConfig)
	app.Put("/api/config", a.putConfig)

	// Stats
	app.Get("/api/stats/digests-per-time", a.digestsPerTime)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// SPA route for shared pack links
	app.Get("/pack/:slug", a.serveIndex)

	// Serve the web frontend
	app.Use("/", filesystem.New(filesystem.Config{
		Browse:     false,
		Index:      "index.html",
		Root:       http.FS(web),
		PathPrefix: "/web",
	}))

	return app
}

func (a *api) serveIndex(c *fiber.Ctx) error {
	index, err := web.ReadFile("web/index.html")
	if err != nil {
		return c.Status(500).SendString("Internal error")
	}
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(index)
}
