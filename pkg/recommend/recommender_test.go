package recommend

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oracle"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr(v float64) *float64 { return &v }

type fakeScorer struct {
	queries    []string
	candidates [][]string
	scores     map[string]float64
	fail       bool
}

func (f *fakeScorer) ScoreBatch(_ context.Context, query string, candidates []string, _ string) ([]models.SimilarityScore, oracle.Summary) {
	f.queries = append(f.queries, query)
	f.candidates = append(f.candidates, candidates)
	out := make([]models.SimilarityScore, len(candidates))
	for i, c := range candidates {
		v, ok := f.scores[c]
		if f.fail || !ok {
			out[i] = models.NewFallbackScore(oracle.ReasonMissing)
			continue
		}
		out[i] = models.SimilarityScore{Value: v, Explanation: "similar work", Source: models.SourceOracle}
	}
	summary := oracle.Summary{Windows: 1}
	if f.fail {
		summary.FailedWindows = 1
	}
	return out, summary
}

func seeker() models.Profile {
	return models.Profile{
		ID:              "resume-1",
		Category:        "Construction",
		Region:          "Seoul Gangnam",
		Skills:          []string{"welding", "rebar"},
		ExperienceYears: ptr(3),
		Wage:            ptr(150000),
	}
}

func postings() []models.Profile {
	return []models.Profile{
		{ID: "busan", Category: "Logistics", Region: "Busan", RequiredExperienceYears: ptr(1), Wage: ptr(150000)},
		{ID: "mapo", Category: "Construction", Region: "Seoul Mapo", RequiredExperienceYears: ptr(6), Wage: ptr(100000)},
		{ID: "gangnam", Category: "construction", Region: "seoul  gangnam", Skills: []string{"Welding"}, RequiredExperienceYears: ptr(2), Wage: ptr(160000)},
	}
}

func criterion(rec models.Recommendation, name string) models.CriterionScore {
	for _, c := range rec.Criteria {
		if c.Name == name {
			return c
		}
	}
	return models.CriterionScore{}
}

func TestRecommend(t *testing.T) {
	ctx := context.Background()

	t.Run("should rank postings with the default rules", func(t *testing.T) {
		r := NewRecommender(nil, DefaultConfig(), testLogger())

		recs, err := r.Recommend(ctx, seeker(), postings(), nil, 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)

		assert.Equal(t, "gangnam", recs[0].Candidate.ID)
		assert.InDelta(t, 100, recs[0].TotalScore, 1e-9)

		assert.Equal(t, "mapo", recs[1].Candidate.ID)
		assert.InDelta(t, 35, criterion(recs[1], CriterionCategory).Score, 1e-9)
		assert.InDelta(t, 12.5, criterion(recs[1], CriterionLocality).Score, 1e-9)
		assert.InDelta(t, 20, criterion(recs[1], CriterionSkills).Score, 1e-9)
		assert.InDelta(t, 7.5, criterion(recs[1], CriterionExperience).Score, 1e-9)
		assert.InDelta(t, 1.67, criterion(recs[1], CriterionWage).Score, 1e-9)

		assert.Equal(t, "busan", recs[2].Candidate.ID)
		assert.Less(t, criterion(recs[2], CriterionCategory).Score, 35.0)
		assert.Zero(t, criterion(recs[2], CriterionLocality).Score)
	})

	t.Run("should truncate to top k", func(t *testing.T) {
		r := NewRecommender(nil, DefaultConfig(), testLogger())

		recs, err := r.Recommend(ctx, seeker(), postings(), nil, 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "gangnam", recs[0].Candidate.ID)
		assert.Equal(t, "mapo", recs[1].Candidate.ID)
	})

	t.Run("should default to three recommendations", func(t *testing.T) {
		r := NewRecommender(nil, Config{}, testLogger())
		candidates := append(postings(), postings()...)

		recs, err := r.Recommend(ctx, seeker(), candidates, nil, 0)
		require.NoError(t, err)
		assert.Len(t, recs, DefaultTopK)
	})

	t.Run("should keep input order for equal totals", func(t *testing.T) {
		r := NewRecommender(nil, DefaultConfig(), testLogger())
		candidates := []models.Profile{
			{ID: "first", Category: "Construction", Region: "Seoul Gangnam"},
			{ID: "second", Category: "Construction", Region: "Seoul Gangnam"},
			{ID: "third", Category: "Construction", Region: "Seoul Gangnam"},
		}

		recs, err := r.Recommend(ctx, seeker(), candidates, nil, 3)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "first", recs[0].Candidate.ID)
		assert.Equal(t, "second", recs[1].Candidate.ID)
		assert.Equal(t, "third", recs[2].Candidate.ID)
	})

	t.Run("should score neighbouring regions in both directions", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RegionNeighbours = map[string][]string{"Seoul": {"Incheon"}}
		r := NewRecommender(nil, cfg, testLogger())

		s := seeker()
		s.Region = "incheon"
		recs, err := r.Recommend(ctx, s, []models.Profile{{ID: "p", Category: "Construction", Region: "Seoul"}}, nil, 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.InDelta(t, 15, criterion(recs[0], CriterionLocality).Score, 1e-9)

		s.Region = "Seoul"
		recs, err = r.Recommend(ctx, s, []models.Profile{{ID: "p", Category: "Construction", Region: "Incheon"}}, nil, 1)
		require.NoError(t, err)
		assert.InDelta(t, 15, criterion(recs[0], CriterionLocality).Score, 1e-9)
	})

	t.Run("should give no experience credit when the seeker's years are unknown", func(t *testing.T) {
		r := NewRecommender(nil, DefaultConfig(), testLogger())
		s := seeker()
		s.ExperienceYears = nil

		recs, err := r.Recommend(ctx, s, []models.Profile{{ID: "p", RequiredExperienceYears: ptr(2)}}, nil, 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Zero(t, criterion(recs[0], CriterionExperience).Score)
		assert.Equal(t, "experience not specified", criterion(recs[0], CriterionExperience).Description)
	})

	t.Run("should return an empty list for no candidates", func(t *testing.T) {
		r := NewRecommender(nil, DefaultConfig(), testLogger())

		recs, err := r.Recommend(ctx, seeker(), nil, nil, 3)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestRecommendOracleCriteria(t *testing.T) {
	ctx := context.Background()

	oracleCriteria := func() []CriterionSpec {
		criteria := DefaultCriteria()
		criteria[0].Strategy = StrategyOracle
		return criteria
	}

	t.Run("should scale oracle scores to the weight cap", func(t *testing.T) {
		scorer := &fakeScorer{scores: map[string]float64{"Construction": 80}}
		r := NewRecommender(scorer, DefaultConfig(), testLogger())

		recs, err := r.Recommend(ctx, seeker(), []models.Profile{{ID: "p", Category: "Construction"}}, oracleCriteria(), 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)

		cat := criterion(recs[0], CriterionCategory)
		assert.InDelta(t, 28, cat.Score, 1e-9)
		assert.Equal(t, "similar work", cat.Description)
		assert.Equal(t, []string{"Construction"}, scorer.queries)
	})

	t.Run("should drop candidates the oracle did not score", func(t *testing.T) {
		scorer := &fakeScorer{scores: map[string]float64{"Construction": 90}}
		r := NewRecommender(scorer, DefaultConfig(), testLogger())
		candidates := []models.Profile{
			{ID: "scored", Category: "Construction"},
			{ID: "omitted", Category: "Plumbing"},
			{ID: "blank"},
		}

		recs, err := r.Recommend(ctx, seeker(), candidates, oracleCriteria(), 3)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "scored", recs[0].Candidate.ID)
		// the blank candidate never reaches the oracle
		assert.Equal(t, [][]string{{"Construction", "Plumbing"}}, scorer.candidates)
	})

	t.Run("should return an empty list when no candidate is fully scored", func(t *testing.T) {
		scorer := &fakeScorer{scores: map[string]float64{}}
		r := NewRecommender(scorer, DefaultConfig(), testLogger())

		recs, err := r.Recommend(ctx, seeker(), []models.Profile{{ID: "p", Category: "Retail"}}, oracleCriteria(), 3)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("should fail when the oracle is down", func(t *testing.T) {
		scorer := &fakeScorer{fail: true}
		r := NewRecommender(scorer, DefaultConfig(), testLogger())

		recs, err := r.Recommend(ctx, seeker(), postings(), oracleCriteria(), 3)
		require.Error(t, err)
		assert.Nil(t, recs)
		assert.Equal(t, http.StatusServiceUnavailable, httperror.GetStatusCode(err))
	})

	t.Run("should reject an oracle criterion without an oracle", func(t *testing.T) {
		r := NewRecommender(nil, DefaultConfig(), testLogger())

		_, err := r.Recommend(ctx, seeker(), postings(), oracleCriteria(), 3)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})

	t.Run("should reject a seeker with nothing to compare", func(t *testing.T) {
		r := NewRecommender(&fakeScorer{}, DefaultConfig(), testLogger())
		s := seeker()
		s.Category = ""

		_, err := r.Recommend(ctx, s, postings(), oracleCriteria(), 3)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}

func TestRecommendTotalsAreSumOfCriteria(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	names := []string{CriterionCategory, CriterionLocality, CriterionSkills, CriterionExperience, CriterionWage}
	categories := []string{"Construction", "Logistics", "Cleaning", ""}
	regions := []string{"Seoul Gangnam", "Seoul Mapo", "Busan", ""}
	skills := []string{"welding", "rebar", "forklift", "driving"}

	randomProfile := func(id string) models.Profile {
		p := models.Profile{
			ID:       id,
			Category: categories[rng.Intn(len(categories))],
			Region:   regions[rng.Intn(len(regions))],
		}
		for _, s := range skills {
			if rng.Intn(2) == 0 {
				p.Skills = append(p.Skills, s)
			}
		}
		if rng.Intn(3) > 0 {
			p.ExperienceYears = ptr(float64(rng.Intn(10)))
			p.RequiredExperienceYears = ptr(float64(rng.Intn(8)))
		}
		if rng.Intn(3) > 0 {
			p.Wage = ptr(float64(80000 + rng.Intn(120000)))
		}
		return p
	}

	r := NewRecommender(nil, DefaultConfig(), testLogger())
	for i := 0; i < 200; i++ {
		order := rng.Perm(len(names))[:1+rng.Intn(len(names))]
		criteria := make([]CriterionSpec, len(order))
		remaining := 100
		for k, idx := range order {
			weight := remaining
			if k < len(order)-1 {
				weight = 1 + rng.Intn(remaining-(len(order)-1-k))
			}
			remaining -= weight
			criteria[k] = CriterionSpec{Name: names[idx], WeightCap: float64(weight)}
		}

		candidates := make([]models.Profile, 1+rng.Intn(6))
		for j := range candidates {
			candidates[j] = randomProfile("p")
		}

		recs, err := r.Recommend(ctx, randomProfile("s"), candidates, criteria, len(candidates))
		require.NoError(t, err)
		require.Len(t, recs, len(candidates))

		for _, rec := range recs {
			require.Len(t, rec.Criteria, len(criteria))
			sum := 0.0
			for k, c := range rec.Criteria {
				assert.Equal(t, criteria[k].Name, c.Name)
				assert.GreaterOrEqual(t, c.Score, 0.0)
				assert.LessOrEqual(t, c.Score, c.WeightCap)
				sum += c.Score
			}
			assert.Equal(t, sum, rec.TotalScore)
			assert.LessOrEqual(t, rec.TotalScore, 100.0+1e-9)
		}
	}
}

func TestValidateCriteria(t *testing.T) {
	t.Run("should accept the defaults", func(t *testing.T) {
		assert.NoError(t, ValidateCriteria(DefaultCriteria()))
	})

	cases := map[string][]CriterionSpec{
		"empty":            {},
		"short of 100":     {{Name: CriterionCategory, WeightCap: 90}},
		"over 100":         {{Name: CriterionCategory, WeightCap: 60}, {Name: CriterionWage, WeightCap: 50}},
		"unknown name":     {{Name: "height", WeightCap: 100}},
		"duplicate name":   {{Name: CriterionWage, WeightCap: 50}, {Name: CriterionWage, WeightCap: 50}},
		"zero cap":         {{Name: CriterionWage, WeightCap: 0}, {Name: CriterionSkills, WeightCap: 100}},
		"unknown strategy": {{Name: CriterionWage, WeightCap: 100, Strategy: "guess"}},
	}
	for name, criteria := range cases {
		t.Run("should reject "+name, func(t *testing.T) {
			err := ValidateCriteria(criteria)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
		})
	}
}

func TestLoadCriteria(t *testing.T) {
	write := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "criteria.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("should load a calibration file", func(t *testing.T) {
		path := write(t, `
criteria:
  - name: category
    weight_cap: 60
    strategy: oracle
    description: kind of work
  - name: locality
    weight_cap: 40
`)
		criteria, err := LoadCriteria(path)
		require.NoError(t, err)
		require.Len(t, criteria, 2)
		assert.Equal(t, CriterionSpec{Name: CriterionCategory, WeightCap: 60, Strategy: StrategyOracle, Description: "kind of work"}, criteria[0])
		assert.Equal(t, CriterionLocality, criteria[1].Name)
	})

	t.Run("should reject caps that do not sum to 100", func(t *testing.T) {
		path := write(t, `
criteria:
  - name: category
    weight_cap: 35
`)
		_, err := LoadCriteria(path)
		assert.Error(t, err)
	})

	t.Run("should fail for a missing file", func(t *testing.T) {
		_, err := LoadCriteria(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
