package intake

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// DefaultAffirmatives confirm a complaint recap.
var DefaultAffirmatives = []string{"ya", "iya", "y", "yes", "ok", "oke", "okay", "siap", "benar", "betul", "sudah"}

// Catalog holds the fixed vocabularies the conversation matches against.
type Catalog struct {
	Affirmatives []string `yaml:"affirmatives"`
	Divisions    []string `yaml:"divisions"`
}

// DefaultCatalog returns the built-in vocabularies.
func DefaultCatalog() Catalog {
	return Catalog{
		Affirmatives: append([]string(nil), DefaultAffirmatives...),
		Divisions:    append([]string(nil), domain.DefaultDivisions...),
	}
}

// LoadCatalog reads a YAML catalog from path. Empty sections fall back to
// the defaults; an empty path returns the defaults unchanged. A division
// list must include the urgent division, otherwise no ticket could ever be
// urgent.
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	input, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open intake catalog: %w", err)
	}
	defer input.Close()

	var loaded Catalog
	if err := yaml.NewDecoder(input).Decode(&loaded); err != nil {
		return Catalog{}, fmt.Errorf("decode intake catalog: %w", err)
	}
	if words := normalizeWords(loaded.Affirmatives); len(words) > 0 {
		catalog.Affirmatives = words
	}
	if divisions := trimAll(loaded.Divisions); len(divisions) > 0 {
		catalog.Divisions = divisions
	}
	if !catalog.HasDivision(domain.UrgentDivision) {
		return Catalog{}, fmt.Errorf("intake catalog %s: divisions must include %q", path, domain.UrgentDivision)
	}
	return catalog, nil
}

// IsAffirmative reports whether answer is exactly one of the affirmative
// words, ignoring case and surrounding whitespace.
func (c Catalog) IsAffirmative(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, word := range c.Affirmatives {
		if answer == strings.ToLower(word) {
			return true
		}
	}
	return false
}

// HasDivision reports whether division is offered by the selector.
func (c Catalog) HasDivision(division string) bool {
	for _, d := range c.Divisions {
		if d == division {
			return true
		}
	}
	return false
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range trimAll(words) {
		out = append(out, strings.ToLower(w))
	}
	return out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
