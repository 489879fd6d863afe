package models

// GroupKind classifies how a duplicate group was detected.
type GroupKind string

const (
	GroupKindExactIdentifier   GroupKind = "exact_identifier"
	GroupKindExactSecondaryKey GroupKind = "exact_secondary_key"
	GroupKindFuzzyIdentifier   GroupKind = "fuzzy_identifier"
	GroupKindFuzzySecondaryKey GroupKind = "fuzzy_secondary_key"
	GroupKindSuspiciousPattern GroupKind = "suspicious_pattern"
)

// IsExact reports whether the kind comes from an exact-match pass.
func (k GroupKind) IsExact() bool {
	return k == GroupKindExactIdentifier || k == GroupKindExactSecondaryKey
}

// DuplicateGroup is a set of records believed to describe the same entity.
type DuplicateGroup struct {
	Kind       GroupKind   `json:"kind"`
	Confidence float64     `json:"confidence"`
	Members    []RecordRef `json:"members"`
	Reasoning  string      `json:"reasoning"`
}

// AnalysisMode selects which detection passes run.
type AnalysisMode string

const (
	// AnalysisBasic runs the exact and suspicious-pattern passes only.
	AnalysisBasic AnalysisMode = "basic"
	// AnalysisAdvanced also runs the pairwise fuzzy pass.
	AnalysisAdvanced AnalysisMode = "advanced"
)

// DuplicateSummary describes a detection run.
type DuplicateSummary struct {
	TotalRecords        int          `json:"total_records"`
	GroupsFound         int          `json:"groups_found"`
	Analysis            AnalysisMode `json:"analysis"`
	IdentifierThreshold float64      `json:"identifier_threshold"`
	SecondaryThreshold  float64      `json:"secondary_threshold"`
}

// DuplicateReport is the result of a detection run.
type DuplicateReport struct {
	Summary DuplicateSummary `json:"summary"`
	Groups  []DuplicateGroup `json:"groups"`
}
