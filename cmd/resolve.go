package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"clawfeed/classify"
	"clawfeed/fetch"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func resolveCmd() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a URL to a typed source descriptor",
		ArgsUsage: "<url>",
		Description: `Classifies a URL the same way the API's source resolve endpoint
does: pattern rules first, then a single bounded fetch with content
sniffing.

Returns the resolved source as a JSON object on stdout. Use a tool like
jq to process the output.

Prints all other log messages to stderr.`,
		Action: func(ctx *cli.Context) error {
			url := ctx.Args().First()
			if url == "" {
				return fmt.Errorf("usage: clawfeed resolve <url>")
			}

			// Keep stdout clean for the JSON result
			log.SetOutput(os.Stderr)

			classifier := classify.New(fetch.NewClient())
			result, err := classifier.Classify(ctx.Context, url)
			if err != nil {
				return err
			}

			encoded, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
}
