package recommend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const (
	neighbourRegionShare = 0.6
	sharedAreaShare      = 0.5
)

// rule scores how well candidate fits the seeker on one criterion as a share
// in [0, 1] together with a human readable reason.
type rule func(r *Recommender, seeker, candidate models.Profile) (float64, string)

var rules = map[string]rule{
	CriterionCategory:   categoryRule,
	CriterionLocality:   localityRule,
	CriterionSkills:     skillsRule,
	CriterionExperience: experienceRule,
	CriterionWage:       wageRule,
}

func categoryRule(_ *Recommender, seeker, candidate models.Profile) (float64, string) {
	want := normalizers.Text(seeker.Category)
	got := normalizers.Text(candidate.Category)
	if want == "" || got == "" {
		return 0, "category not specified"
	}
	if want == got {
		return 1, fmt.Sprintf("same category %q", got)
	}
	sim := matching.LexicalSimilarity(want, got)
	return sim, fmt.Sprintf("category %q vs %q (%.0f%% similar)", want, got, sim*100)
}

func localityRule(r *Recommender, seeker, candidate models.Profile) (float64, string) {
	want := normalizers.Text(seeker.Region)
	got := normalizers.Text(candidate.Region)
	if want == "" || got == "" {
		return 0, "region not specified"
	}
	if want == got {
		return 1, fmt.Sprintf("same region %q", got)
	}
	for _, n := range r.neighbours[want] {
		if n == got {
			return neighbourRegionShare, fmt.Sprintf("%q neighbours %q", got, want)
		}
	}
	if wantArea, gotArea := strings.Fields(want)[0], strings.Fields(got)[0]; wantArea == gotArea {
		return sharedAreaShare, fmt.Sprintf("same wider area %q", gotArea)
	}
	return 0, fmt.Sprintf("different region %q", got)
}

func skillsRule(r *Recommender, seeker, candidate models.Profile) (float64, string) {
	required := normalizers.SplitList(strings.Join(candidate.Skills, ","))
	if len(required) == 0 {
		return 1, "no skills required"
	}
	have := normalizers.SplitList(strings.Join(seeker.Skills, ","))

	var matched []string
	for _, req := range required {
		for _, h := range have {
			if skillMatches(req, h, r.config.SkillMatchThreshold) {
				matched = append(matched, req)
				break
			}
		}
	}

	share := float64(len(matched)) / float64(len(required))
	if len(matched) == 0 {
		return 0, fmt.Sprintf("none of %d required skills matched", len(required))
	}
	return share, fmt.Sprintf("matched %d of %d required skills (%s)", len(matched), len(required), strings.Join(matched, ", "))
}

func skillMatches(required, have string, threshold float64) bool {
	if required == have || strings.Contains(have, required) || strings.Contains(required, have) {
		return true
	}
	return matching.LexicalSimilarity(required, have) >= threshold
}

func experienceRule(_ *Recommender, seeker, candidate models.Profile) (float64, string) {
	if candidate.RequiredExperienceYears == nil || *candidate.RequiredExperienceYears <= 0 {
		return 1, "no experience requirement"
	}
	required := *candidate.RequiredExperienceYears
	if seeker.ExperienceYears == nil {
		return 0, "experience not specified"
	}
	years := max(*seeker.ExperienceYears, 0)
	share := min(1, years/required)
	return share, fmt.Sprintf("%s of %s required years", formatNumber(years), formatNumber(required))
}

func wageRule(_ *Recommender, seeker, candidate models.Profile) (float64, string) {
	if seeker.Wage == nil || *seeker.Wage <= 0 {
		return 1, "no wage expectation"
	}
	desired := *seeker.Wage
	if candidate.Wage == nil {
		return 0, "wage not specified"
	}
	offered := *candidate.Wage
	if offered >= desired {
		return 1, fmt.Sprintf("offers %s against %s desired", formatNumber(offered), formatNumber(desired))
	}
	share := matching.NumericProximity(offered, desired, desired/2)
	return share, fmt.Sprintf("offers %s, below %s desired", formatNumber(offered), formatNumber(desired))
}

// criterionText is the text sent to the oracle for a criterion.
func criterionText(name string, p models.Profile) string {
	switch name {
	case CriterionCategory:
		return strings.TrimSpace(strings.Join(nonEmpty(p.Category, p.Title), " - "))
	case CriterionLocality:
		return strings.TrimSpace(strings.Join(nonEmpty(p.Region, p.Location), " "))
	case CriterionSkills:
		return strings.Join(normalizers.SplitList(strings.Join(p.Skills, ",")), ", ")
	case CriterionExperience:
		if p.RequiredExperienceYears != nil {
			return formatNumber(*p.RequiredExperienceYears) + " years required"
		}
		if p.ExperienceYears != nil {
			return formatNumber(*p.ExperienceYears) + " years of experience"
		}
	case CriterionWage:
		if p.Wage != nil {
			return formatNumber(*p.Wage) + " per day"
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
