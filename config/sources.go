package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultSources []byte

// SourceConfig describes one rental site.
type SourceConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Kind      string `yaml:"kind" validate:"required"`
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	SearchURL string `yaml:"search_url"`
	City      string `yaml:"city"`
	Currency  string `yaml:"currency" validate:"omitempty,len=3"`
	NeedsJS   bool   `yaml:"needs_js"`
	MaxPages  int    `yaml:"max_pages" validate:"gte=0"`
	PerPage   int    `yaml:"per_page" validate:"gte=0"`
	Enabled   bool   `yaml:"enabled"`

	MinPrice int `yaml:"-"`
	MaxPrice int `yaml:"-"`
}

// ErrUnknownSource is returned when a requested source is not in the catalogue.
var ErrUnknownSource = errors.New("unknown source")

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources parses the source catalogue at path, or the embedded default
// when path is empty.
func LoadSources(path string) ([]SourceConfig, error) {
	data := defaultSources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read sources: %w", err)
		}
		data = b
	}
	return ParseSources(data)
}

// ParseSources decodes and validates a YAML source catalogue.
func ParseSources(data []byte) ([]SourceConfig, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse sources: %w", err)
	}

	v := validator.New()
	seen := make(map[string]struct{}, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		if err := v.Struct(s); err != nil {
			return nil, fmt.Errorf("config: source %q: %w", s.Name, err)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("config: duplicate source %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return f.Sources, nil
}

// SelectSources returns the enabled sources, narrowed to names when given.
// Naming a source explicitly selects it even if disabled. Unknown names are
// an error.
func SelectSources(all []SourceConfig, names []string) ([]SourceConfig, error) {
	if len(names) == 0 {
		var out []SourceConfig
		for _, s := range all {
			if s.Enabled {
				out = append(out, s)
			}
		}
		return out, nil
	}

	byName := make(map[string]SourceConfig, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	out := make([]SourceConfig, 0, len(names))
	for _, n := range names {
		s, ok := byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("config: %w %q", ErrUnknownSource, n)
		}
		out = append(out, s)
	}
	return out, nil
}

// SearchURLFor expands the search URL template for one results page.
func (s SourceConfig) SearchURLFor(page int) string {
	r := strings.NewReplacer(
		"{city}", s.City,
		"{min_price}", strconv.Itoa(s.MinPrice),
		"{max_price}", strconv.Itoa(s.MaxPrice),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(s.SearchURL)
}
