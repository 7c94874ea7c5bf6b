package services

import (
	_ "embed"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rates.yaml
var defaultRates []byte

// RateTable converts amounts between currencies using fixed static rates.
// It is read-only after construction.
type RateTable struct {
	toEUR map[string]float64
}

// DefaultRates returns the embedded rate table.
func DefaultRates() (*RateTable, error) {
	return ParseRates(defaultRates)
}

// ParseRates decodes a YAML map of currency code to EUR value.
func ParseRates(data []byte) (*RateTable, error) {
	raw := map[string]float64{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rates: parse: %w", err)
	}
	t := &RateTable{toEUR: make(map[string]float64, len(raw))}
	for code, v := range raw {
		if v <= 0 {
			return nil, fmt.Errorf("rates: %s must be positive", code)
		}
		t.toEUR[strings.ToUpper(code)] = v
	}
	if _, ok := t.toEUR["EUR"]; !ok {
		t.toEUR["EUR"] = 1
	}
	return t, nil
}

// Convert changes amount from one currency to another, rounded to cents.
// Unknown currencies are an error.
func (t *RateTable) Convert(amount float64, from, to string) (float64, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == "" || from == to {
		return amount, nil
	}
	f, ok := t.toEUR[from]
	if !ok {
		return 0, fmt.Errorf("rates: unknown currency %q", from)
	}
	r, ok := t.toEUR[to]
	if !ok {
		return 0, fmt.Errorf("rates: unknown currency %q", to)
	}
	return math.Round(amount*f/r*100) / 100, nil
}
