// Package recommend ranks job postings against a résumé with weight-capped
// criteria. A candidate whose criteria cannot all be evaluated is dropped.
package recommend

import (
	"cmp"
	"context"
	"math"
	"net/http"
	"slices"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultTopK is the number of recommendations returned when none is requested.
const DefaultTopK = 3

// BatchScorer scores candidate texts against a query.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, query string, candidates []string, promptContext string) ([]models.SimilarityScore, oracle.Summary)
}

// Config holds recommender configuration
type Config struct {
	TopK int
	// RegionNeighbours lists, per region, the regions considered adjacent.
	RegionNeighbours map[string][]string `yaml:"region_neighbours"`
	// SkillMatchThreshold is the lexical similarity at which two skills match.
	SkillMatchThreshold float64
}

// DefaultConfig returns the default recommender configuration
func DefaultConfig() Config {
	return Config{
		TopK:                DefaultTopK,
		SkillMatchThreshold: 0.8,
	}
}

// Recommender scores candidates against a seeker profile.
type Recommender struct {
	scorer     BatchScorer
	config     Config
	neighbours map[string][]string
	logger     ectologger.Logger
}

// NewRecommender creates a recommender. scorer may be nil when every
// criterion uses the rule strategy.
func NewRecommender(scorer BatchScorer, cfg Config, logger ectologger.Logger) *Recommender {
	defaults := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.SkillMatchThreshold <= 0 || cfg.SkillMatchThreshold > 1 {
		cfg.SkillMatchThreshold = defaults.SkillMatchThreshold
	}

	// neighbour lookups are symmetric and keyed on normalized names
	neighbours := make(map[string][]string)
	for region, adjacent := range cfg.RegionNeighbours {
		r := normalizers.Text(region)
		for _, a := range adjacent {
			n := normalizers.Text(a)
			if r == "" || n == "" || r == n {
				continue
			}
			neighbours[r] = appendUnique(neighbours[r], n)
			neighbours[n] = appendUnique(neighbours[n], r)
		}
	}

	return &Recommender{
		scorer:     scorer,
		config:     cfg,
		neighbours: neighbours,
		logger:     logger,
	}
}

// evaluation is one criterion's result for one candidate.
type evaluation struct {
	score       float64
	description string
	valid       bool
}

// Recommend returns at most topK candidates ordered by descending total
// score with ties kept in input order. topK of 0 uses the configured default.
// An empty result with a nil error means no candidate could be scored with
// confidence; an unreachable oracle is reported as a 503 error instead.
func (r *Recommender) Recommend(ctx context.Context, seeker models.Profile, candidates []models.Profile, criteria []CriterionSpec, topK int) ([]models.Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "recommend.Recommender.Recommend")
	defer span.End()

	if criteria == nil {
		criteria = DefaultCriteria()
	}
	if err := ValidateCriteria(criteria); err != nil {
		return nil, err
	}
	if topK < 0 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "top k must not be negative")
	}
	if topK == 0 {
		topK = r.config.TopK
	}
	for _, c := range criteria {
		if c.Strategy == StrategyOracle && r.scorer == nil {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "criterion %q needs an oracle but none is configured", c.Name)
		}
	}

	if len(candidates) == 0 {
		metrics.RecommendationsTotal.WithLabelValues("empty").Inc()
		return []models.Recommendation{}, nil
	}

	evaluations := make([][]evaluation, len(criteria))
	for i, c := range criteria {
		var err error
		if c.Strategy == StrategyOracle {
			evaluations[i], err = r.evaluateOracle(ctx, c, seeker, candidates)
		} else {
			evaluations[i] = r.evaluateRule(c, seeker, candidates)
		}
		if err != nil {
			metrics.RecommendationsTotal.WithLabelValues("unavailable").Inc()
			return nil, err
		}
	}

	recommendations := make([]models.Recommendation, 0, len(candidates))
	dropped := 0
next:
	for j, candidate := range candidates {
		scores := make([]models.CriterionScore, len(criteria))
		for i, c := range criteria {
			e := evaluations[i][j]
			if !e.valid {
				dropped++
				metrics.CandidatesDroppedTotal.WithLabelValues(c.Name).Inc()
				r.logger.WithContext(ctx).WithFields(map[string]any{
					"candidate_id": candidate.ID,
					"criterion":    c.Name,
					"reason":       e.description,
				}).Debug("dropping candidate with unscored criterion")
				continue next
			}
			scores[i] = models.CriterionScore{
				Name:        c.Name,
				Score:       e.score,
				WeightCap:   c.WeightCap,
				Description: e.description,
			}
		}
		recommendations = append(recommendations, models.Recommendation{
			Candidate:  candidate,
			TotalScore: models.TotalOf(scores),
			Criteria:   scores,
		})
	}

	slices.SortStableFunc(recommendations, func(a, b models.Recommendation) int {
		return cmp.Compare(b.TotalScore, a.TotalScore)
	})
	if len(recommendations) > topK {
		recommendations = recommendations[:topK]
	}

	outcome := "ok"
	if len(recommendations) == 0 {
		outcome = "empty"
	}
	metrics.RecommendationsTotal.WithLabelValues(outcome).Inc()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"seeker_id":  seeker.ID,
		"candidates": len(candidates),
		"dropped":    dropped,
		"returned":   len(recommendations),
	}).Info("recommendations ranked")

	return recommendations, nil
}

func (r *Recommender) evaluateRule(c CriterionSpec, seeker models.Profile, candidates []models.Profile) []evaluation {
	fn := rules[c.Name]
	out := make([]evaluation, len(candidates))
	for j, candidate := range candidates {
		share, description := fn(r, seeker, candidate)
		out[j] = evaluation{
			score:       capped(share, c.WeightCap),
			description: description,
			valid:       true,
		}
	}
	return out
}

func (r *Recommender) evaluateOracle(ctx context.Context, c CriterionSpec, seeker models.Profile, candidates []models.Profile) ([]evaluation, error) {
	query := criterionText(c.Name, seeker)
	if query == "" {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "seeker profile has no %s to compare", c.Name)
	}

	out := make([]evaluation, len(candidates))
	texts := make([]string, 0, len(candidates))
	positions := make([]int, 0, len(candidates))
	for j, candidate := range candidates {
		text := criterionText(c.Name, candidate)
		if text == "" {
			out[j] = evaluation{description: c.Name + " not specified"}
			continue
		}
		texts = append(texts, text)
		positions = append(positions, j)
	}
	if len(texts) == 0 {
		return out, nil
	}

	promptContext := c.Description
	if promptContext == "" {
		promptContext = c.Name
	}
	scores, summary := r.scorer.ScoreBatch(ctx, query, texts, promptContext)
	if summary.AllFailed() {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"criterion": c.Name,
			"windows":   summary.Windows,
		}).Warn("oracle unavailable for every window")
		return nil, httperror.NewHTTPErrorf(http.StatusServiceUnavailable, "scoring backend unavailable for criterion %q", c.Name)
	}

	for k, j := range positions {
		s := scores[k]
		if s.Source != models.SourceOracle {
			out[j] = evaluation{description: s.Explanation}
			continue
		}
		out[j] = evaluation{
			score:       capped(s.Value/100, c.WeightCap),
			description: s.Explanation,
			valid:       true,
		}
	}
	return out, nil
}

// capped scales share onto [0, weightCap], rounded to two decimals.
func capped(share, weightCap float64) float64 {
	if math.IsNaN(share) {
		share = 0
	}
	share = min(max(share, 0), 1)
	return min(math.Round(share*weightCap*100)/100, weightCap)
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
