package models

// Profile is a résumé or a job posting as seen by the recommender.
// On a résumé Wage is the desired daily wage; on a posting it is the offered one.
type Profile struct {
	ID                      string   `json:"id" yaml:"id"`
	Title                   string   `json:"title,omitempty" yaml:"title"`
	Category                string   `json:"category" yaml:"category"`
	Region                  string   `json:"region" yaml:"region"`
	Location                string   `json:"location,omitempty" yaml:"location"`
	Description             string   `json:"description,omitempty" yaml:"description"`
	Skills                  []string `json:"skills,omitempty" yaml:"skills"`
	ExperienceYears         *float64 `json:"experience_years,omitempty" yaml:"experience_years"`
	RequiredExperienceYears *float64 `json:"required_experience_years,omitempty" yaml:"required_experience_years"`
	Wage                    *float64 `json:"wage,omitempty" yaml:"wage"`
}

// CriterionScore is a single criterion's contribution to a recommendation.
type CriterionScore struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	WeightCap   float64 `json:"weight_cap"`
	Description string  `json:"description"`
}

// Recommendation is a ranked candidate. TotalScore is the sum of Criteria scores.
type Recommendation struct {
	Candidate  Profile          `json:"candidate"`
	TotalScore float64          `json:"total_score"`
	Criteria   []CriterionScore `json:"criteria"`
}

// TotalOf sums criterion scores.
func TotalOf(criteria []CriterionScore) float64 {
	total := 0.0
	for _, c := range criteria {
		total += c.Score
	}
	return total
}
