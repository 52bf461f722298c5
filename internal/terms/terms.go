// Package terms holds the clinical terms dictionary and the change severity
// classifier built on top of it. The dictionary is loaded once and treated as
// immutable; Reload swaps in a fresh copy without mutating anything a
// concurrent reader may hold.
package terms

import (
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"
)

// TermsDB is an immutable snapshot of the four term tiers plus the compiled
// change patterns. Concurrent reads require no locking.
type TermsDB struct {
	critical    map[string]struct{}
	significant map[string]struct{}
	temporal    map[string]struct{}
	medication  map[string]struct{}

	criticalPatterns   []*regexp.Regexp
	temporalPatterns   []*regexp.Regexp
	medicationPatterns []*regexp.Regexp
}

// Fallback tiers used when no dictionary file is configured or readable.
var (
	defaultCriticalTerms    = []string{"death", "died", "fatal", "life-threatening", "hospitalization", "anaphylaxis"}
	defaultSignificantTerms = []string{"adverse", "reaction", "side effect", "symptom", "onset"}
	defaultTemporalMarkers  = []string{"started", "began", "onset", "duration", "continued"}
	defaultMedicationTerms  = []string{"dose", "dosage", "discontinued", "titrated"}
)

var (
	criticalPatterns = []string{
		`\b(death|died|fatal|life-threatening|anaphylaxis)\b`,
		`\b(hospitalization|emergency|ICU)\b`,
		`\b(serious|severe|critical)\b`,
	}
	temporalPatterns = []string{
		`\b(\d+)\s*(day|week|month|hour|minute)s?\b`,
		`\b(immediately|within|after|before|during)\b`,
		`\b(onset|duration|started|began|stopped)\b`,
	}
	medicationPatterns = []string{
		`\b(\d+\.?\d*)\s*(mg|ml|g|units?)\b`,
		`\b(daily|twice|once|every|per)\b`,
		`\b(increased|decreased|discontinued|started)\b`,
	}
)

// DefaultTermsDB builds a dictionary from the built-in fallback tiers.
func DefaultTermsDB() *TermsDB {
	return newTermsDB(defaultCriticalTerms, defaultSignificantTerms, defaultTemporalMarkers, defaultMedicationTerms)
}

// LoadTermsDB reads the tier lists from a YAML file. Missing tiers fall back
// to the built-in defaults so a partial file still yields a usable dictionary.
func LoadTermsDB(path string) (*TermsDB, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read clinical terms file %s: %w", path, err)
	}

	critical := stringListOr(v, "critical_terms", defaultCriticalTerms)
	significant := stringListOr(v, "significant_terms", defaultSignificantTerms)
	temporal := stringListOr(v, "temporal_markers", defaultTemporalMarkers)
	medication := stringListOr(v, "medication_terms", defaultMedicationTerms)

	return newTermsDB(critical, significant, temporal, medication), nil
}

func stringListOr(v *viper.Viper, key string, fallback []string) []string {
	if v.IsSet(key) {
		return v.GetStringSlice(key)
	}
	return fallback
}

func newTermsDB(critical, significant, temporal, medication []string) *TermsDB {
	return &TermsDB{
		critical:           termSet(critical),
		significant:        termSet(significant),
		temporal:           termSet(temporal),
		medication:         termSet(medication),
		criticalPatterns:   compilePatterns(criticalPatterns),
		temporalPatterns:   compilePatterns(temporalPatterns),
		medicationPatterns: compilePatterns(medicationPatterns),
	}
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			set[term] = struct{}{}
		}
	}
	return set
}

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+pattern))
	}
	return compiled
}

// matches returns the tier terms found in the lowercased text.
func matchTier(tier map[string]struct{}, lowered string) []string {
	var matched []string
	for term := range tier {
		if strings.Contains(lowered, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

func matchAnyPattern(patterns []*regexp.Regexp, text string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Registry holds the current dictionary behind an atomic pointer so readers
// never see a partially applied reload.
type Registry struct {
	path    string
	current atomic.Pointer[TermsDB]
}

// NewRegistry loads the dictionary from path, or the built-in defaults when
// path is empty.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if path == "" {
		r.current.Store(DefaultTermsDB())
		log.Println("[TERMS] no clinical terms file configured, using built-in defaults")
		return r, nil
	}
	db, err := LoadTermsDB(path)
	if err != nil {
		return nil, err
	}
	r.current.Store(db)
	log.Printf("[TERMS] loaded clinical terms from %s", path)
	return r, nil
}

// Current returns the active dictionary snapshot. May be nil only if the
// registry itself was never initialized.
func (r *Registry) Current() *TermsDB {
	if r == nil {
		return nil
	}
	return r.current.Load()
}

// Reload re-reads the dictionary file and swaps it in. On failure the previous
// snapshot stays active.
func (r *Registry) Reload() error {
	if r.path == "" {
		r.current.Store(DefaultTermsDB())
		return nil
	}
	db, err := LoadTermsDB(r.path)
	if err != nil {
		return fmt.Errorf("failed to reload clinical terms: %w", err)
	}
	r.current.Store(db)
	log.Printf("[TERMS] reloaded clinical terms from %s", r.path)
	return nil
}
