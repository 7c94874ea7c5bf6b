package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidFilter is returned for filters that can never match.
var ErrInvalidFilter = errors.New("invalid filter")

var validate = validator.New()

// Validate checks field bounds and that every range is ordered.
func (f Filter) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return fmt.Errorf("%w: price_min %.0f > price_max %.0f", ErrInvalidFilter, *f.PriceMin, *f.PriceMax)
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
