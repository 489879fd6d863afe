package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, ectologger.Logger, error) {
	cfg, errs := config.Load(configPath)
	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.New(cfg, logger).Run(ctx)
		},
	}
}

func createSearchCmd() *cobra.Command {
	var (
		query         string
		field         string
		mode          string
		limit         int
		minSimilarity float64
	)

	cmd := &cobra.Command{
		Use:   "search [records-file]",
		Short: "Rank records from a YAML or JSON file by similarity to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readFile[[]models.Record](args[0])
			if err != nil {
				return err
			}
			engine, err := newEngine()
			if err != nil {
				return err
			}

			result, err := engine.Orchestrator.Search(cmd.Context(), similarity.SearchRequest{
				Query:         query,
				Field:         field,
				Records:       records,
				Mode:          similarity.Mode(mode),
				Limit:         limit,
				MinSimilarity: minSimilarity,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "text to compare against")
	cmd.Flags().StringVarP(&field, "field", "f", "", "record field to compare")
	cmd.Flags().StringVar(&mode, "mode", "", "oracle, lexical or hybrid (defaults to SIMILARITY_MODE)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results, 0 for all")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0, "drop results scoring below this")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func createDuplicatesCmd() *cobra.Command {
	var (
		identifierField       string
		secondaryField        string
		analysis              string
		identifierNormalizers []string
		secondaryNormalizers  []string
	)

	cmd := &cobra.Command{
		Use:   "duplicates [records-file]",
		Short: "Find duplicate accounts in a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readFile[[]models.Record](args[0])
			if err != nil {
				return err
			}
			engine, err := newEngine()
			if err != nil {
				return err
			}

			opts := engine.DuplicateOptions
			if identifierField != "" {
				opts.IdentifierField = identifierField
			}
			if secondaryField != "" {
				opts.SecondaryField = secondaryField
			}
			if analysis != "" {
				opts.Analysis = models.AnalysisMode(analysis)
			}
			if cmd.Flags().Changed("identifier-normalizers") {
				opts.IdentifierNormalizers = identifierNormalizers
			}
			if cmd.Flags().Changed("secondary-normalizers") {
				opts.SecondaryNormalizers = secondaryNormalizers
			}

			report, err := engine.Detector.Detect(cmd.Context(), records, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&identifierField, "identifier-field", "", "field holding the account identifier")
	cmd.Flags().StringVar(&secondaryField, "secondary-field", "", "field holding the display name")
	cmd.Flags().StringVar(&analysis, "analysis", "", "basic or advanced")
	cmd.Flags().StringSliceVar(&identifierNormalizers, "identifier-normalizers", nil, "normalizers applied to identifiers before matching, e.g. nfkc,trim")
	cmd.Flags().StringSliceVar(&secondaryNormalizers, "secondary-normalizers", nil, "normalizers applied to secondary keys before matching")
	return cmd
}

func createRecommendCmd() *cobra.Command {
	var (
		seekerPath string
		topK       int
	)

	cmd := &cobra.Command{
		Use:   "recommend [postings-file]",
		Short: "Recommend postings from a YAML or JSON file for a seeker profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seeker, err := readFile[models.Profile](seekerPath)
			if err != nil {
				return err
			}
			candidates, err := readFile[[]models.Profile](args[0])
			if err != nil {
				return err
			}
			engine, err := newEngine()
			if err != nil {
				return err
			}

			recs, err := engine.Recommender.Recommend(cmd.Context(), seeker, candidates, engine.Criteria, topK)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}

	cmd.Flags().StringVarP(&seekerPath, "seeker", "s", "", "YAML or JSON file holding the seeker profile")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of recommendations (defaults to RECOMMEND_TOP_K)")
	_ = cmd.MarkFlagRequired("seeker")
	return cmd
}

func newEngine() (*app.Engine, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	return app.NewEngine(cfg, nil, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
