package terms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

// DefaultMinorLengthThreshold separates Cosmetic from Minor when no clinical
// term matches: a changed region longer than this is at least Minor.
const DefaultMinorLengthThreshold = 100

// Classifier scores change blocks against the clinical terms dictionary.
// Classification is deterministic for a given dictionary and input text.
type Classifier struct {
	registry             *Registry
	minorLengthThreshold int
}

// NewClassifier builds a classifier over the registry. A threshold of zero
// selects the default.
func NewClassifier(registry *Registry, minorLengthThreshold int) *Classifier {
	if minorLengthThreshold <= 0 {
		minorLengthThreshold = DefaultMinorLengthThreshold
	}
	return &Classifier{registry: registry, minorLengthThreshold: minorLengthThreshold}
}

// Classify assigns a severity to the block and reports which clinical terms
// matched. The highest matching tier wins. Fails closed: when the dictionary
// is unavailable the block is classified Critical and an error wrapping
// domain.ErrClassification is returned so the caller can surface it.
func (c *Classifier) Classify(block domain.ChangeBlock) (domain.Severity, []string, error) {
	db := c.registry.Current()
	if db == nil {
		return domain.SeverityCritical, nil, fmt.Errorf("%w: terms dictionary unavailable", domain.ErrClassification)
	}

	combined := strings.ToLower(block.OriginalText + " " + block.ModifiedText)

	criticalHits := matchTier(db.critical, combined)
	if len(criticalHits) > 0 || matchAnyPattern(db.criticalPatterns, combined) {
		return domain.SeverityCritical, sorted(criticalHits), nil
	}

	significantHits := matchTier(db.significant, combined)
	temporalHits := matchTier(db.temporal, combined)
	medicationHits := matchTier(db.medication, combined)
	if len(significantHits)+len(temporalHits)+len(medicationHits) > 0 ||
		matchAnyPattern(db.temporalPatterns, combined) ||
		matchAnyPattern(db.medicationPatterns, combined) {
		hits := append(significantHits, temporalHits...)
		hits = append(hits, medicationHits...)
		return domain.SeveritySignificant, sorted(hits), nil
	}

	if len(block.OriginalText)+len(block.ModifiedText) > c.minorLengthThreshold {
		return domain.SeverityMinor, nil, nil
	}

	return domain.SeverityCosmetic, nil, nil
}

func sorted(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	sort.Strings(terms)
	return terms
}
