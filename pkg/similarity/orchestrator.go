// Package similarity ranks records by how similar one of their text fields is
// to a query, using lexical distance, the comparison oracle, or both.
package similarity

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ReasonEmptyField explains the score of a record whose field is blank.
const ReasonEmptyField = "empty field"

// Mode selects how records are scored.
type Mode string

const (
	ModeOracle  Mode = "oracle"
	ModeLexical Mode = "lexical"
	ModeHybrid  Mode = "hybrid"
)

// ParseMode validates a mode name. An empty name yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case ModeOracle:
		return ModeOracle, nil
	case ModeLexical:
		return ModeLexical, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown similarity mode %q (use oracle, lexical or hybrid)", s)
	}
}

// BatchScorer scores candidate texts against a query. *oracle.BatchClient implements it.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, query string, candidates []string, promptContext string) ([]models.SimilarityScore, oracle.Summary)
}

// Config holds orchestrator configuration
type Config struct {
	Mode Mode
	// HybridLexicalWeight is the share of a hybrid score contributed by lexical similarity.
	HybridLexicalWeight float64
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Mode:                ModeOracle,
		HybridLexicalWeight: 0.3,
	}
}

// Orchestrator annotates records with similarity scores and orders them.
type Orchestrator struct {
	scorer    BatchScorer
	extractor *extractor.Extractor
	config    Config
	logger    ectologger.Logger
}

// NewOrchestrator creates an orchestrator. scorer may be nil only in lexical mode.
func NewOrchestrator(scorer BatchScorer, cfg Config, logger ectologger.Logger) (*Orchestrator, error) {
	mode, err := ParseMode(string(cfg.Mode), ModeOracle)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.HybridLexicalWeight < 0 || cfg.HybridLexicalWeight > 1 {
		return nil, fmt.Errorf("hybrid lexical weight must be between 0 and 1, got %f", cfg.HybridLexicalWeight)
	}
	if scorer == nil && cfg.Mode != ModeLexical {
		return nil, fmt.Errorf("an oracle is required for %s mode", cfg.Mode)
	}

	return &Orchestrator{
		scorer:    scorer,
		extractor: extractor.New(),
		config:    cfg,
		logger:    logger,
	}, nil
}

// Mode returns the default scoring mode.
func (o *Orchestrator) Mode() Mode {
	return o.config.Mode
}

// FindMostSimilar scores the value at field of every record against query and
// returns all records ordered by descending score. Ties keep input order.
func (o *Orchestrator) FindMostSimilar(ctx context.Context, query string, records []models.Record, field string) ([]models.AnnotatedRecord, error) {
	return o.rank(ctx, query, records, field, o.config.Mode)
}

// SearchRequest asks for the records most similar to Query.
type SearchRequest struct {
	Query         string
	Field         string
	Records       []models.Record
	Mode          Mode
	Limit         int     // 0 keeps every match
	MinSimilarity float64 // matches must score at least this
}

// SearchResult is the filtered ranking returned by Search.
type SearchResult struct {
	Results        []models.AnnotatedRecord `json:"results"`
	TotalProcessed int                      `json:"total_processed"`
	TotalMatched   int                      `json:"total_matched"`
}

// Search ranks records, keeps those scoring at least MinSimilarity and
// truncates the list to Limit.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Limit < 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "limit must not be negative")
	}
	if req.MinSimilarity < 0 || req.MinSimilarity > 100 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "min similarity must be between 0 and 100")
	}
	mode, err := ParseMode(string(req.Mode), o.config.Mode)
	if err != nil {
		return nil, err
	}

	ranked, err := o.rank(ctx, req.Query, req.Records, req.Field, mode)
	if err != nil {
		return nil, err
	}

	matched := make([]models.AnnotatedRecord, 0, len(ranked))
	for _, r := range ranked {
		if r.Similarity.Value >= req.MinSimilarity {
			matched = append(matched, r)
		}
	}

	result := &SearchResult{
		TotalProcessed: len(ranked),
		TotalMatched:   len(matched),
		Results:        matched,
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		result.Results = matched[:req.Limit]
	}
	return result, nil
}

// ComparePair scores the similarity of two texts. label names what is being
// compared and is passed to the oracle.
func (o *Orchestrator) ComparePair(ctx context.Context, a, b, label string, mode Mode) (models.SimilarityScore, error) {
	ctx, span := tracing.StartSpan(ctx, "similarity.Orchestrator.ComparePair")
	defer span.End()

	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return models.SimilarityScore{}, httperror.NewHTTPError(http.StatusBadRequest, "both texts are required")
	}
	mode, err := ParseMode(string(mode), o.config.Mode)
	if err != nil {
		return models.SimilarityScore{}, err
	}
	if err := o.requireScorer(mode); err != nil {
		return models.SimilarityScore{}, err
	}

	lexical := lexicalScore(a, b)
	if mode == ModeLexical {
		return lexical, nil
	}

	scores, _ := o.scorer.ScoreBatch(ctx, a, []string{b}, label)
	if mode == ModeHybrid {
		return o.blend(scores[0], lexical), nil
	}
	return scores[0], nil
}

func (o *Orchestrator) requireScorer(mode Mode) error {
	if mode != ModeLexical && o.scorer == nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s mode is not available without an oracle", mode)
	}
	return nil
}

func (o *Orchestrator) validate(query string, records []models.Record, field string) error {
	if strings.TrimSpace(query) == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if strings.TrimSpace(field) == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "field is required")
	}
	if err := o.extractor.Validate(field); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid field path %q: %v", field, err)
	}
	if len(records) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "at least one record is required")
	}
	return nil
}

func (o *Orchestrator) rank(ctx context.Context, query string, records []models.Record, field string, mode Mode) ([]models.AnnotatedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "similarity.Orchestrator.FindMostSimilar")
	defer span.End()

	if err := o.validate(query, records, field); err != nil {
		return nil, err
	}
	if err := o.requireScorer(mode); err != nil {
		return nil, err
	}

	annotated := make([]models.AnnotatedRecord, len(records))
	values := make([]string, len(records))
	// positions of records with a non-empty field, in input order
	scored := make([]int, 0, len(records))
	known := false
	for i, record := range records {
		annotated[i].Record = record
		raw, _ := o.extractor.Extract(record, field)
		if raw == nil {
			annotated[i].Similarity = models.NewFallbackScore(ReasonEmptyField)
			continue
		}
		known = true
		values[i] = o.extractor.String(record, field)
		if strings.TrimSpace(values[i]) == "" {
			annotated[i].Similarity = models.NewFallbackScore(ReasonEmptyField)
			continue
		}
		scored = append(scored, i)
	}
	if !known {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown field %q", field)
	}

	start := time.Now()
	metrics.SimilarityRequestsTotal.WithLabelValues(string(mode)).Inc()
	defer func() {
		metrics.SimilarityDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	var oracleScores []models.SimilarityScore
	var summary oracle.Summary
	if mode != ModeLexical && len(scored) > 0 {
		candidates := make([]string, len(scored))
		for j, i := range scored {
			candidates[j] = values[i]
		}
		oracleScores, summary = o.scorer.ScoreBatch(ctx, query, candidates, fmt.Sprintf("similarity of %s values", field))
	}

	for j, i := range scored {
		lexical := lexicalScore(query, values[i])
		switch mode {
		case ModeLexical:
			annotated[i].Similarity = lexical
		case ModeHybrid:
			annotated[i].Similarity = o.blend(oracleScores[j], lexical)
		default:
			annotated[i].Similarity = oracleScores[j]
		}
	}

	slices.SortStableFunc(annotated, func(a, b models.AnnotatedRecord) int {
		return cmp.Compare(b.Similarity.Value, a.Similarity.Value)
	})

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"mode":           mode,
		"field":          field,
		"records":        len(records),
		"empty_fields":   len(records) - len(scored),
		"failed_windows": summary.FailedWindows,
	}).Debug("ranked records by similarity")

	return annotated, nil
}

// blend merges an oracle and a lexical score. When the oracle fell back the
// lexical judgment stands on its own.
func (o *Orchestrator) blend(oracleScore, lexical models.SimilarityScore) models.SimilarityScore {
	if oracleScore.Source != models.SourceOracle {
		return models.SimilarityScore{
			Value:       lexical.Value,
			Explanation: fmt.Sprintf("%s (oracle: %s)", lexical.Explanation, oracleScore.Explanation),
			Source:      models.SourceLexical,
		}
	}

	w := o.config.HybridLexicalWeight
	return models.SimilarityScore{
		Value:       models.ClampScore((1-w)*oracleScore.Value + w*lexical.Value),
		Explanation: fmt.Sprintf("%s; %s", oracleScore.Explanation, lexical.Explanation),
		Source:      models.SourceOracle,
	}
}

func lexicalScore(a, b string) models.SimilarityScore {
	sim := matching.LexicalSimilarity(a, b)
	return models.SimilarityScore{
		Value:       models.ClampScore(sim * 100),
		Explanation: fmt.Sprintf("lexical similarity %.2f (edit distance %d)", sim, matching.LevenshteinDistance(a, b)),
		Source:      models.SourceLexical,
	}
}
