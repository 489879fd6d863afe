package recommend

import (
	"fmt"
	"math"
	"net/http"
	"os"

	"github.com/Gobusters/ectoerror/httperror"
	"gopkg.in/yaml.v3"
)

// Criterion names understood by the recommender.
const (
	CriterionCategory   = "category"
	CriterionLocality   = "locality"
	CriterionSkills     = "skills"
	CriterionExperience = "experience"
	CriterionWage       = "wage"
)

// TotalWeight is the sum every criteria set must reach.
const TotalWeight = 100.0

// Strategy selects how a criterion is evaluated.
type Strategy string

const (
	// StrategyRule evaluates a criterion with a deterministic rule.
	StrategyRule Strategy = "rule"
	// StrategyOracle asks the comparison oracle.
	StrategyOracle Strategy = "oracle"
)

// CriterionSpec configures one scoring criterion.
type CriterionSpec struct {
	Name        string   `json:"name" yaml:"name"`
	WeightCap   float64  `json:"weight_cap" yaml:"weight_cap"`
	Strategy    Strategy `json:"strategy,omitempty" yaml:"strategy"`
	Description string   `json:"description,omitempty" yaml:"description"`
}

// DefaultCriteria returns the standard five criteria.
func DefaultCriteria() []CriterionSpec {
	return []CriterionSpec{
		{Name: CriterionCategory, WeightCap: 35, Strategy: StrategyRule, Description: "job category match"},
		{Name: CriterionLocality, WeightCap: 25, Strategy: StrategyRule, Description: "region proximity"},
		{Name: CriterionSkills, WeightCap: 20, Strategy: StrategyRule, Description: "required skill overlap"},
		{Name: CriterionExperience, WeightCap: 15, Strategy: StrategyRule, Description: "experience fit"},
		{Name: CriterionWage, WeightCap: 5, Strategy: StrategyRule, Description: "daily wage fit"},
	}
}

var knownCriteria = map[string]bool{
	CriterionCategory:   true,
	CriterionLocality:   true,
	CriterionSkills:     true,
	CriterionExperience: true,
	CriterionWage:       true,
}

// ValidateCriteria checks names, strategies and that the caps sum to TotalWeight.
func ValidateCriteria(criteria []CriterionSpec) error {
	if len(criteria) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "at least one criterion is required")
	}

	seen := make(map[string]bool, len(criteria))
	sum := 0.0
	for _, c := range criteria {
		if !knownCriteria[c.Name] {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown criterion %q", c.Name)
		}
		if seen[c.Name] {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "criterion %q is listed twice", c.Name)
		}
		seen[c.Name] = true

		if c.WeightCap <= 0 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "criterion %q must have a positive weight cap", c.Name)
		}
		switch c.Strategy {
		case "", StrategyRule, StrategyOracle:
		default:
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "criterion %q has unknown strategy %q", c.Name, c.Strategy)
		}
		sum += c.WeightCap
	}

	if math.Abs(sum-TotalWeight) > 1e-6 {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "criterion weight caps must sum to %.0f, got %g", TotalWeight, sum)
	}
	return nil
}

type criteriaFile struct {
	Criteria []CriterionSpec `yaml:"criteria"`
}

// LoadCriteria reads and validates criteria from a YAML file of the form
//
//	criteria:
//	  - name: category
//	    weight_cap: 35
//	    strategy: oracle
func LoadCriteria(path string) ([]CriterionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}

	var file criteriaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse criteria file: %w", err)
	}

	if err := ValidateCriteria(file.Criteria); err != nil {
		return nil, fmt.Errorf("invalid criteria file %s: %w", path, err)
	}
	return file.Criteria, nil
}
