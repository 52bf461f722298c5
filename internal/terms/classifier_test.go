package terms

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	registry, err := NewRegistry("")
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return NewClassifier(registry, 0)
}

func TestClassifyCriticalTermAlwaysCritical(t *testing.T) {
	classifier := defaultClassifier(t)

	block := domain.ChangeBlock{
		Type:         domain.ChangeModification,
		OriginalText: "Patient took drug X, felt fine",
		ModifiedText: "Patient took drug X, developed anaphylaxis",
	}
	severity, matched, err := classifier.Classify(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeverityCritical {
		t.Fatalf("text containing a critical term must classify critical, got %s", severity)
	}
	found := false
	for _, term := range matched {
		if term == "anaphylaxis" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected anaphylaxis in matched terms, got %v", matched)
	}
}

func TestClassifyHighestTierWins(t *testing.T) {
	classifier := defaultClassifier(t)

	// Matches both the medication tier (dose) and the critical tier (fatal).
	block := domain.ChangeBlock{ModifiedText: "dose escalation preceded a fatal event"}
	severity, _, err := classifier.Classify(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeverityCritical {
		t.Errorf("critical tier must win over medication tier, got %s", severity)
	}
}

func TestClassifyTemporalAndMedicationAreSignificant(t *testing.T) {
	classifier := defaultClassifier(t)

	temporal := domain.ChangeBlock{ModifiedText: "symptom onset two days later"}
	severity, _, err := classifier.Classify(temporal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeveritySignificant {
		t.Errorf("temporal marker should classify significant, got %s", severity)
	}

	medication := domain.ChangeBlock{ModifiedText: "titrated to 50 mg daily"}
	severity, _, err = classifier.Classify(medication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeveritySignificant {
		t.Errorf("medication dose change should classify significant, got %s", severity)
	}
}

func TestClassifyCosmeticAndMinor(t *testing.T) {
	classifier := defaultClassifier(t)

	short := domain.ChangeBlock{OriginalText: "The  note was tidied.", ModifiedText: "The note was tidied."}
	severity, matched, err := classifier.Classify(short)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeverityCosmetic {
		t.Errorf("short term-free change should be cosmetic, got %s", severity)
	}
	if len(matched) != 0 {
		t.Errorf("expected no matched terms, got %v", matched)
	}

	long := domain.ChangeBlock{ModifiedText: strings.Repeat("general wording tidy-up across the whole paragraph ", 3)}
	severity, _, err = classifier.Classify(long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeverityMinor {
		t.Errorf("long term-free change should be minor, got %s", severity)
	}
}

func TestClassifyFailsClosed(t *testing.T) {
	classifier := NewClassifier(&Registry{}, 0)

	severity, _, err := classifier.Classify(domain.ChangeBlock{ModifiedText: "harmless edit"})
	if !errors.Is(err, domain.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
	if severity != domain.SeverityCritical {
		t.Errorf("classification failures must default to critical, got %s", severity)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	classifier := defaultClassifier(t)
	block := domain.ChangeBlock{ModifiedText: "adverse reaction with symptom onset"}

	first, firstTerms, err := classifier.Classify(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		severity, terms, err := classifier.Classify(block)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if severity != first {
			t.Fatalf("severity changed between runs: %s vs %s", first, severity)
		}
		if strings.Join(terms, ",") != strings.Join(firstTerms, ",") {
			t.Fatalf("matched terms changed between runs: %v vs %v", firstTerms, terms)
		}
	}
}

func TestRegistryLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clinical_terms.yaml")
	initial := "critical_terms:\n  - anaphylaxis\n  - overdose\nsignificant_terms:\n  - rash\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("failed to write terms file: %v", err)
	}

	registry, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("failed to load terms file: %v", err)
	}
	classifier := NewClassifier(registry, 0)

	severity, _, err := classifier.Classify(domain.ChangeBlock{ModifiedText: "patient experienced overdose"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeverityCritical {
		t.Fatalf("custom critical term should classify critical, got %s", severity)
	}

	// Drop overdose from the critical tier and reload; old snapshot must be
	// replaced wholesale.
	updated := "critical_terms:\n  - anaphylaxis\nsignificant_terms:\n  - rash\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to rewrite terms file: %v", err)
	}
	if err := registry.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	severity, _, err = classifier.Classify(domain.ChangeBlock{ModifiedText: "rash noted on arm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if severity != domain.SeveritySignificant {
		t.Errorf("expected significant after reload, got %s", severity)
	}
}
