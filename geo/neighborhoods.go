package geo

import (
	"embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"rental-scraper/models"
)

//go:embed neighborhoods/*.yaml
var neighborhoodFiles embed.FS

// ErrUnknownRegion is returned when no neighborhood table exists for a region.
var ErrUnknownRegion = errors.New("geo: no neighborhood table for region")

// Overall score weights.
const (
	weightSafety    = 1.5
	weightGreen     = 1.0
	weightAmenities = 1.2
	weightDining    = 0.8
	weightFamily    = 1.0
	weightExpat     = 1.0
	weightTotal     = weightSafety + weightGreen + weightAmenities + weightDining + weightFamily + weightExpat
)

type areaDoc struct {
	Name           string `yaml:"name"`
	Safety         int    `yaml:"safety"`
	GreenSpace     int    `yaml:"green_space"`
	Amenities      int    `yaml:"amenities"`
	Dining         int    `yaml:"dining"`
	FamilyFriendly int    `yaml:"family_friendly"`
	ExpatFriendly  int    `yaml:"expat_friendly"`
}

type postalRange struct {
	From int    `yaml:"from"`
	To   int    `yaml:"to"`
	Area string `yaml:"area"`
}

type tableDoc struct {
	Region       string             `yaml:"region"`
	Prefixes     []string           `yaml:"prefixes"`
	Areas        map[string]areaDoc `yaml:"areas"`
	Aliases      map[string]string  `yaml:"aliases"`
	PostalRanges []postalRange      `yaml:"postal_ranges"`
}

type phrase struct {
	text string
	area string
}

// NeighborhoodTable is an immutable per-region lookup of area ratings.
type NeighborhoodTable struct {
	region   string
	prefixes []string
	areas    map[string]models.NeighborhoodScore
	phrases  []phrase
	ranges   []postalRange
}

// LoadNeighborhoods returns the embedded table for region.
func LoadNeighborhoods(region string) (*NeighborhoodTable, error) {
	name := strings.ToLower(strings.TrimSpace(region))
	data, err := neighborhoodFiles.ReadFile("neighborhoods/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return ParseNeighborhoods(data)
}

// ParseNeighborhoods builds a table from its YAML form.
func ParseNeighborhoods(data []byte) (*NeighborhoodTable, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("neighborhoods: parse: %w", err)
	}

	t := &NeighborhoodTable{
		region: doc.Region,
		areas:  make(map[string]models.NeighborhoodScore, len(doc.Areas)),
		ranges: doc.PostalRanges,
	}
	for _, p := range doc.Prefixes {
		t.prefixes = append(t.prefixes, strings.ToLower(p))
	}

	for key, a := range doc.Areas {
		for _, v := range []int{a.Safety, a.GreenSpace, a.Amenities, a.Dining, a.FamilyFriendly, a.ExpatFriendly} {
			if v < 1 || v > 10 {
				return nil, fmt.Errorf("neighborhoods: %s: rating %d outside 1-10", key, v)
			}
		}
		key = strings.ToLower(key)
		t.areas[key] = score(a)
		t.phrases = append(t.phrases, phrase{text: key, area: key})
	}
	for alias, key := range doc.Aliases {
		key = strings.ToLower(key)
		if _, ok := t.areas[key]; !ok {
			return nil, fmt.Errorf("neighborhoods: alias %q points to unknown area %q", alias, key)
		}
		t.phrases = append(t.phrases, phrase{text: strings.ToLower(alias), area: key})
	}
	for _, r := range doc.PostalRanges {
		if _, ok := t.areas[r.Area]; !ok {
			return nil, fmt.Errorf("neighborhoods: postal range %d-%d points to unknown area %q", r.From, r.To, r.Area)
		}
	}

	// Longest phrase first so "ouder-amstel" wins over "amstel".
	sort.Slice(t.phrases, func(i, j int) bool {
		a, b := t.phrases[i].text, t.phrases[j].text
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return t, nil
}

func score(a areaDoc) models.NeighborhoodScore {
	overall := (float64(a.Safety)*weightSafety +
		float64(a.GreenSpace)*weightGreen +
		float64(a.Amenities)*weightAmenities +
		float64(a.Dining)*weightDining +
		float64(a.FamilyFriendly)*weightFamily +
		float64(a.ExpatFriendly)*weightExpat) / weightTotal
	return models.NeighborhoodScore{
		Name:           a.Name,
		Safety:         a.Safety,
		GreenSpace:     a.GreenSpace,
		Amenities:      a.Amenities,
		Dining:         a.Dining,
		FamilyFriendly: a.FamilyFriendly,
		ExpatFriendly:  a.ExpatFriendly,
		Overall:        math.Round(overall*10) / 10,
	}
}

// Region returns the table's region name.
func (t *NeighborhoodTable) Region() string { return t.region }

// Match finds the area for a listing. Priority: the district or city field
// naming an area exactly, then a known alias or area name inside the text
// fields, then the postal code range. It returns nil when nothing matches.
func (t *NeighborhoodTable) Match(district, city, address, postalCode string) *models.NeighborhoodScore {
	if t == nil {
		return nil
	}
	key, ok := t.matchKey(district, city, address, postalCode)
	if !ok {
		return nil
	}
	s := t.areas[key]
	return &s
}

func (t *NeighborhoodTable) matchKey(district, city, address, postalCode string) (string, bool) {
	for _, field := range []string{district, city} {
		if key := t.normalize(field); key != "" {
			if _, ok := t.areas[key]; ok {
				return key, true
			}
		}
	}

	text := strings.ToLower(strings.Join([]string{district, city, address}, " "))
	for _, p := range t.phrases {
		if containsPhrase(text, p.text) {
			return p.area, true
		}
	}

	if n, ok := postalNumber(postalCode); ok {
		for _, r := range t.ranges {
			if n >= r.From && n <= r.To {
				return r.Area, true
			}
		}
	}
	return "", false
}

func (t *NeighborhoodTable) normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range t.prefixes {
		if strings.HasPrefix(n, p) {
			n = strings.TrimSpace(n[len(p):])
			break
		}
	}
	return n
}

// containsPhrase reports whether p occurs in text delimited by non-letters.
func containsPhrase(text, p string) bool {
	for from := 0; from <= len(text)-len(p); {
		i := strings.Index(text[from:], p)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(p)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !unicode.IsLetter(before)) && (end == len(text) || !unicode.IsLetter(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

func postalNumber(pc string) (int, bool) {
	pc = strings.TrimSpace(pc)
	if len(pc) < 4 {
		return 0, false
	}
	n, err := strconv.Atoi(pc[:4])
	if err != nil {
		return 0, false
	}
	return n, true
}
