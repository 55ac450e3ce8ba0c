package cmd

import (
	"fmt"

	"clawfeed/db"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing expired sessions.

		Sessions outlive their 30 day cookie on the server side; run this
		periodically to keep the sessions table small.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "clawfeed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"CLAWFEED_DATABASE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)
			err := db.Tidy(database)
			return err
		},
	}
}
