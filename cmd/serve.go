package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"clawfeed/classify"
	"clawfeed/db"
	"clawfeed/fetch"
	"clawfeed/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the clawfeed API and web frontend",
		Description: `Starts the clawfeed HTTP server.

Serves per-user digest feeds, the JSON API for digests, marks, sources,
subscriptions and packs, Google sign in, and the embedded web frontend.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "clawfeed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"CLAWFEED_DATABASE"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8767,
				Usage:   "Port to listen on",
				EnvVars: []string{"CLAWFEED_PORT"},
			},
			&cli.StringFlag{
				Name:    "hostname",
				Value:   "localhost",
				Usage:   "Hostname the server is reachable at",
				EnvVars: []string{"CLAWFEED_HOSTNAME"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Value:   "https://clawfeed.kevinhe.io",
				Usage:   "Public base URL used in rendered feeds and OAuth redirects",
				EnvVars: []string{"CLAWFEED_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key authorizing digest ingestion and config writes",
				EnvVars: []string{"CLAWFEED_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "google-client-id",
				Usage:   "Google OAuth client id",
				EnvVars: []string{"CLAWFEED_GOOGLE_CLIENT_ID"},
			},
			&cli.StringFlag{
				Name:    "google-client-secret",
				Usage:   "Google OAuth client secret",
				EnvVars: []string{"CLAWFEED_GOOGLE_CLIENT_SECRET"},
			},
			&cli.StringFlag{
				Name:    "allowed-origins",
				Value:   "http://localhost:8767",
				Usage:   "Comma separated origins allowed to call the API",
				EnvVars: []string{"CLAWFEED_ALLOWED_ORIGINS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Println("Starting clawfeed...")

			database := ctx.String("database")
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}

			store, err := db.New(database)
			if err != nil {
				return fmt.Errorf("could not open database: %w", err)
			}
			defer store.Close()

			app := server.Server(&server.ServerConfig{
				Hostname:           ctx.String("hostname"),
				BaseURL:            ctx.String("base-url"),
				APIKey:             ctx.String("api-key"),
				GoogleClientID:     ctx.String("google-client-id"),
				GoogleClientSecret: ctx.String("google-client-secret"),
				AllowedOrigins:     ctx.String("allowed-origins"),
				DB:                 store,
				Classifier:         classify.New(fetch.NewClient()),
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			var wg sync.WaitGroup

			go func() {
				<-c
				fmt.Println("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Error(err)
				}
				wg.Add(-1)
			}()

			go func() {
				fmt.Println("Starting server...")
				if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
					log.Panic(err)
				}
			}()

			wg.Add(1)
			wg.Wait()

			fmt.Println("Done!")
			return nil
		},
	}
}
