// Command topology renders relationship diagrams of a PostgreSQL database
// from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/KilluaDB/topology/internal/config"
	"github.com/KilluaDB/topology/internal/database"
	"github.com/KilluaDB/topology/internal/models"
	"github.com/KilluaDB/topology/internal/render"
	"github.com/KilluaDB/topology/internal/repositories"
	"github.com/KilluaDB/topology/internal/services"
	"github.com/KilluaDB/topology/internal/topology"
	"github.com/KilluaDB/topology/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "topology",
		Short:        "Explore foreign key topology of a PostgreSQL database",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRenderCmd(), newERCmd(), newTokenCmd())
	return rootCmd
}

func newRenderCmd() *cobra.Command {
	var (
		depth  int
		expand []string
		format string
	)

	cmd := &cobra.Command{
		Use:   "render <schema.table>",
		Short: "Render the relationship topology around a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Topology.FetchTimeout)
			defer cancel()

			pool, err := database.Connect(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if depth == 0 {
				depth = cfg.Topology.InitialDepth
			}
			fetcher := services.NewRelationshipService(repositories.NewSchemaRepository(pool), nil, cfg.Topology.MaxDepth, logger)

			schema, table := models.NodeKey(args[0]).Split()
			if schema == "" {
				schema = services.DefaultSchema
			}
			controller := topology.NewController(fetcher, schema, table, topology.Options{
				InitialDepth: depth,
				ExpandDepth:  cfg.Topology.ExpandDepth,
				Logger:       logger,
			})
			defer controller.Close()

			if err := controller.Load(ctx); err != nil {
				return err
			}
			for _, key := range expand {
				s, t := models.NodeKey(key).Split()
				if s == "" {
					s = services.DefaultSchema
				}
				if _, err := controller.RequestExpand(ctx, models.NewNodeKey(s, t), s, t); err != nil {
					return err
				}
			}

			ir, _ := controller.Diagram()
			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ir)
			case "mermaid":
				result, err := render.NewMermaid().Render(ir)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), result.Source)
				return err
			default:
				return fmt.Errorf("unknown format %q (want mermaid or json)", format)
			}
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "levels to fetch around the table (default TOPOLOGY_INITIAL_DEPTH)")
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "schema.table keys to expand after the initial load")
	cmd.Flags().StringVarP(&format, "format", "o", "mermaid", "output format: mermaid or json")
	return cmd
}

func newERCmd() *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "er",
		Short: "Render a Mermaid ER diagram of a whole schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Topology.FetchTimeout)
			defer cancel()

			pool, err := database.Connect(ctx, cfg.Database, newLogger(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			diagram, err := services.NewSchemaService(repositories.NewSchemaRepository(pool)).VisualizeSchema(ctx, schema)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), diagram)
			return err
		},
	}

	cmd.Flags().StringVar(&schema, "schema", services.DefaultSchema, "schema to visualize")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token signed with ACCESS_TOKEN_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := utils.GenerateAccessToken(subject, []byte(os.Getenv("ACCESS_TOKEN_SECRET")), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "topology-cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// newLogger writes to stderr so that diagrams on stdout stay clean.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}
