package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "clawfeed",
		Usage: "Personal AI digest feeds with subscribable sources",
		Description: `ClawFeed stores AI generated digests and serves them back as
		RSS 2.0 and JSON Feed 1.1 feeds, one feed per user.

		Users sign in with Google, subscribe to typed sources (twitter feeds
		and lists, subreddits, GitHub trending, Hacker News, RSS feeds,
		digest feeds and plain websites) and can install curated source
		packs in one action. Arbitrary URLs are resolved to typed sources
		with a bounded fetch and content sniffing.

		Flags can generally be set via environment variables, e.g.:

		--database => CLAWFEED_DATABASE=clawfeed.db
		--port => CLAWFEED_PORT=8767
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			seedCmd(),
			resolveCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
