package cmd

import (
	"encoding/json"
	"fmt"

	"clawfeed/config"
	"clawfeed/db"
	"clawfeed/models"

	"github.com/cqroot/prompt"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Seed starter source packs from a TOML file",
		Description: `Reads pack definitions from a TOML file and creates them in the
database. Packs whose slug already exists are left untouched, so the
command is safe to re-run after editing the file.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "clawfeed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"CLAWFEED_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "packs.toml",
				Usage:   "TOML file with starter pack definitions",
				EnvVars: []string{"CLAWFEED_SEED_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Skip the confirmation prompt",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return err
			}
			if len(cfg.Packs) == 0 {
				fmt.Println("No packs defined, nothing to do")
				return nil
			}

			if !ctx.Bool("yes") {
				answer, err := prompt.New().
					Ask(fmt.Sprintf("Seed %d pack(s) into %s?", len(cfg.Packs), ctx.String("database"))).
					Choose([]string{"Yes", "No"})
				if err != nil {
					return err
				}
				if answer != "Yes" {
					fmt.Println("Aborted")
					return nil
				}
			}

			store, err := db.New(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			for _, pack := range cfg.Packs {
				slug := pack.Slug
				if slug == "" {
					slug = db.Slugify(pack.Name)
				}

				existing, err := store.GetPackBySlug(ctx.Context, slug)
				if err != nil {
					return err
				}
				if existing != nil {
					log.WithFields(log.Fields{
						"slug": slug,
					}).Info("Pack already exists, skipping")
					continue
				}

				sourcesJSON, err := encodePackSources(pack.Sources)
				if err != nil {
					return fmt.Errorf("pack %q has invalid sources: %w", slug, err)
				}

				if _, err := store.CreatePack(ctx.Context, models.Pack{
					Slug:        slug,
					Name:        pack.Name,
					Description: pack.Description,
					SourcesJSON: sourcesJSON,
					IsPublic:    pack.Public,
				}); err != nil {
					return err
				}
			}

			fmt.Println("Done!")
			return nil
		},
	}
}

func encodePackSources(sources []config.TomlSource) (string, error) {
	templates := make([]models.PackSource, 0, len(sources))
	for _, s := range sources {
		cfg := s.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		raw, err := json.Marshal(cfg)
		if err != nil {
			return "", err
		}
		templates = append(templates, models.PackSource{Name: s.Name, Type: s.Type, Config: raw})
	}
	encoded, err := json.Marshal(templates)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
