package app

import (
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/recommend"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// Engine holds the scoring components built from configuration.
type Engine struct {
	Orchestrator     *similarity.Orchestrator
	Detector         *duplicates.Detector
	Recommender      *recommend.Recommender
	Criteria         []recommend.CriterionSpec
	DuplicateOptions duplicates.Options
}

// NewEngine builds the scoring components. The oracle is only set up when a
// URL is configured; limiter may be nil.
func NewEngine(cfg *config.Config, limiter oracle.Limiter, logger ectologger.Logger) (*Engine, error) {
	var (
		simScorer similarity.BatchScorer
		recScorer recommend.BatchScorer
	)
	if cfg.OracleURL != "" {
		httpOracle, err := oracle.NewHTTPOracle(cfg.OracleHTTP(), logger)
		if err != nil {
			return nil, err
		}
		client := oracle.NewBatchClient(httpOracle, limiter, cfg.OracleBatch(), logger)
		simScorer = client
		recScorer = client
	}

	orchestrator, err := similarity.NewOrchestrator(simScorer, cfg.Similarity(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create similarity orchestrator: %w", err)
	}

	var criteria []recommend.CriterionSpec
	if cfg.RecommendCriteriaFile != "" {
		criteria, err = recommend.LoadCriteria(cfg.RecommendCriteriaFile)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		Orchestrator:     orchestrator,
		Detector:         duplicates.NewDetector(logger),
		Recommender:      recommend.NewRecommender(recScorer, cfg.Recommend(), logger),
		Criteria:         criteria,
		DuplicateOptions: cfg.Duplicates(),
	}, nil
}
