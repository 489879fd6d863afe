// Package duplicates finds records that probably describe the same entity.
//
// Detection runs in stages. Exact passes group records whose normalized
// identifier, then secondary key, are equal; a record joins at most one exact
// group. A fuzzy pass compares every remaining pair. Finally a pattern pass
// flags throwaway-looking identifiers across the whole set.
package duplicates

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// ExactConfidence is the confidence of exact-match groups.
	ExactConfidence = 1.0
	// SuspiciousConfidence is the confidence of the suspicious-pattern group.
	SuspiciousConfidence = 0.8
)

// Options controls a detection run
type Options struct {
	IdentifierField     string              `json:"identifier_field" yaml:"identifier_field"`
	SecondaryField      string              `json:"secondary_field" yaml:"secondary_field"`
	IdentifierThreshold float64             `json:"identifier_threshold" yaml:"identifier_threshold"`
	SecondaryThreshold  float64             `json:"secondary_threshold" yaml:"secondary_threshold"`
	Analysis            models.AnalysisMode `json:"analysis" yaml:"analysis"`
	// IdentifierNormalizers and SecondaryNormalizers name registered
	// normalizers applied in order before values are keyed or compared.
	IdentifierNormalizers []string `json:"identifier_normalizers,omitempty" yaml:"identifier_normalizers"`
	SecondaryNormalizers  []string `json:"secondary_normalizers,omitempty" yaml:"secondary_normalizers"`
}

// DefaultOptions returns the default detection options
func DefaultOptions() Options {
	return Options{
		IdentifierField:     "email",
		SecondaryField:      "username",
		IdentifierThreshold: 0.7,
		SecondaryThreshold:  0.8,
		Analysis:            models.AnalysisAdvanced,
	}
}

// Detector groups duplicate records. It holds no per-run state.
type Detector struct {
	extractor *extractor.Extractor
	logger    ectologger.Logger
}

// NewDetector creates a new Detector
func NewDetector(logger ectologger.Logger) *Detector {
	return &Detector{
		extractor: extractor.New(),
		logger:    logger,
	}
}

type entry struct {
	position   int
	id         string
	identifier string
	secondary  string
	// normalized forms used for matching
	identifierKey string
	secondaryKey  string
}

func (e entry) ref() models.RecordRef {
	return models.RecordRef{
		Position:   e.position,
		ID:         e.id,
		Identifier: e.identifier,
		Secondary:  e.secondary,
	}
}

func (d *Detector) validate(opts Options) error {
	if opts.IdentifierField == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "identifier field is required")
	}
	if opts.SecondaryField == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "secondary field is required")
	}
	for _, path := range []string{opts.IdentifierField, opts.SecondaryField} {
		if err := d.extractor.Validate(path); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid field path %q: %v", path, err)
		}
	}
	if opts.IdentifierThreshold < 0 || opts.IdentifierThreshold > 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "identifier threshold must be between 0 and 1")
	}
	if opts.SecondaryThreshold < 0 || opts.SecondaryThreshold > 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "secondary threshold must be between 0 and 1")
	}
	if opts.Analysis != models.AnalysisBasic && opts.Analysis != models.AnalysisAdvanced {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown analysis %q (use basic or advanced)", opts.Analysis)
	}
	for _, name := range append(slices.Clone(opts.IdentifierNormalizers), opts.SecondaryNormalizers...) {
		if _, ok := normalizers.Get(name); !ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown normalizer %q", name)
		}
	}
	return nil
}

// Detect returns the duplicate groups found in records, ordered by descending
// confidence. The same input always yields the same report.
func (d *Detector) Detect(ctx context.Context, records []models.Record, opts Options) (*models.DuplicateReport, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicates.Detector.Detect")
	defer span.End()

	if opts.Analysis == "" {
		opts.Analysis = models.AnalysisAdvanced
	}
	if err := d.validate(opts); err != nil {
		return nil, err
	}

	entries := make([]entry, len(records))
	for i, record := range records {
		identifier := strings.TrimSpace(d.extractor.String(record, opts.IdentifierField))
		secondary := strings.TrimSpace(d.extractor.String(record, opts.SecondaryField))
		entries[i] = entry{
			position:      i,
			id:            record.ID(),
			identifier:    identifier,
			secondary:     secondary,
			identifierKey: normalizers.ApplyChain(identifier, opts.IdentifierNormalizers...),
			secondaryKey:  normalizers.ApplyChain(secondary, opts.SecondaryNormalizers...),
		}
	}

	used := make([]bool, len(entries))
	groups := exactGroups(entries, used, models.GroupKindExactIdentifier, func(e entry) string { return e.identifierKey })
	groups = append(groups, exactGroups(entries, used, models.GroupKindExactSecondaryKey, func(e entry) string { return e.secondaryKey })...)

	if opts.Analysis == models.AnalysisAdvanced {
		groups = append(groups, fuzzyGroups(entries, used, opts)...)
	}

	if group, ok := suspiciousGroup(entries); ok {
		groups = append(groups, group)
	}

	slices.SortStableFunc(groups, func(a, b models.DuplicateGroup) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	for _, g := range groups {
		metrics.DuplicateGroupsTotal.WithLabelValues(string(g.Kind)).Inc()
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"records":  len(records),
		"groups":   len(groups),
		"analysis": opts.Analysis,
	}).Info("duplicate detection completed")

	return &models.DuplicateReport{
		Summary: models.DuplicateSummary{
			TotalRecords:        len(records),
			GroupsFound:         len(groups),
			Analysis:            opts.Analysis,
			IdentifierThreshold: opts.IdentifierThreshold,
			SecondaryThreshold:  opts.SecondaryThreshold,
		},
		Groups: groups,
	}, nil
}

// exactGroups groups unused entries by normalized key, in order of each key's
// first appearance, and marks grouped entries as used.
func exactGroups(entries []entry, used []bool, kind models.GroupKind, value func(entry) string) []models.DuplicateGroup {
	var keys []string
	byKey := map[string][]int{}
	for i, e := range entries {
		if used[i] {
			continue
		}
		key := normalizers.Key(value(e))
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], i)
	}

	var groups []models.DuplicateGroup
	for _, key := range keys {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		refs := make([]models.RecordRef, len(members))
		for j, i := range members {
			used[i] = true
			refs[j] = entries[i].ref()
		}
		label := "identifier"
		if kind == models.GroupKindExactSecondaryKey {
			label = "secondary key"
		}
		groups = append(groups, models.DuplicateGroup{
			Kind:       kind,
			Confidence: ExactConfidence,
			Members:    refs,
			Reasoning:  fmt.Sprintf("%d records share the %s %q", len(members), label, key),
		})
	}
	return groups
}

// fuzzyGroups compares every unordered pair of unused entries.
func fuzzyGroups(entries []entry, used []bool, opts Options) []models.DuplicateGroup {
	remaining := make([]entry, 0, len(entries))
	for i, e := range entries {
		if !used[i] {
			remaining = append(remaining, e)
		}
	}

	var groups []models.DuplicateGroup
	for i := 0; i < len(remaining); i++ {
		for j := i + 1; j < len(remaining); j++ {
			a, b := remaining[i], remaining[j]

			if a.identifierKey != "" && b.identifierKey != "" {
				score := identifierScore(a.identifierKey, b.identifierKey)
				if score >= opts.IdentifierThreshold {
					groups = append(groups, models.DuplicateGroup{
						Kind:       models.GroupKindFuzzyIdentifier,
						Confidence: score,
						Members:    []models.RecordRef{a.ref(), b.ref()},
						Reasoning:  fmt.Sprintf("identifiers %q and %q are %.0f%% similar", a.identifierKey, b.identifierKey, score*100),
					})
				}
			}

			if a.secondaryKey != "" && b.secondaryKey != "" && !matching.MixedScript(a.secondaryKey, b.secondaryKey) {
				score := matching.LexicalSimilarity(a.secondaryKey, b.secondaryKey)
				if score >= opts.SecondaryThreshold {
					groups = append(groups, models.DuplicateGroup{
						Kind:       models.GroupKindFuzzySecondaryKey,
						Confidence: score,
						Members:    []models.RecordRef{a.ref(), b.ref()},
						Reasoning:  fmt.Sprintf("secondary keys %q and %q are %.0f%% similar", a.secondaryKey, b.secondaryKey, score*100),
					})
				}
			}
		}
	}
	return groups
}

// identifierScore uses identifier similarity for local@domain values and plain
// lexical similarity for anything else.
func identifierScore(a, b string) float64 {
	_, _, okA := matching.SplitIdentifier(a)
	_, _, okB := matching.SplitIdentifier(b)
	if okA && okB {
		return matching.IdentifierSimilarity(a, b)
	}
	return matching.LexicalSimilarity(a, b)
}

func suspiciousGroup(entries []entry) (models.DuplicateGroup, bool) {
	var refs []models.RecordRef
	for _, e := range entries {
		if IsSuspiciousIdentifier(e.identifier) {
			refs = append(refs, e.ref())
		}
	}
	if len(refs) < 2 {
		return models.DuplicateGroup{}, false
	}
	return models.DuplicateGroup{
		Kind:       models.GroupKindSuspiciousPattern,
		Confidence: SuspiciousConfidence,
		Members:    refs,
		Reasoning:  fmt.Sprintf("%d records have low-entropy identifiers", len(refs)),
	}, true
}

// IsSuspiciousIdentifier reports whether a local@domain identifier looks
// throwaway: very short on both sides, the same on both sides, or one side
// made of a single repeated character.
func IsSuspiciousIdentifier(identifier string) bool {
	local, domain, ok := matching.SplitIdentifier(identifier)
	if !ok {
		return false
	}
	if len([]rune(local)) <= 2 && len([]rune(domain)) <= 3 {
		return true
	}
	if local == domain {
		return true
	}
	return isRepeatedChar(local) || isRepeatedChar(domain)
}

func isRepeatedChar(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}
