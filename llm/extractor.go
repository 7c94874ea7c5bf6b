package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rental-scraper/models"
	"rental-scraper/services"
	"rental-scraper/utils"
)

const extractionPrompt = `You are extracting structured rental listing information from a housing website page.

Return ONLY valid JSON with these exact keys (use null for missing values):

{
  "title": "listing title or address",
  "price": 1500,
  "currency": "EUR",
  "address": "full street address",
  "city": "city name",
  "neighborhood": "neighborhood or district",
  "postal_code": "1234 AB",
  "surface_m2": 75,
  "rooms": 3,
  "deposit": 1500,
  "furnished": "Furnished/Unfurnished/Upholstered",
  "property_type": "Apartment/Studio/House/Room",
  "energy_label": "A/B/C/D/E/F/G",
  "available_date": "2024-03-01 or Immediately",
  "description_summary": "2-3 sentence summary of the listing"
}

Important:
- Extract numbers as integers or floats, not strings
- Use null for any field you cannot find
- For price, extract the monthly rent amount only
- For rooms, count all rooms, not only bedrooms

PAGE CONTENT:
%s

Respond with ONLY the JSON object, no explanation or markdown.`

// Options tune the extractor.
type Options struct {
	MaxInputChars int
	RPS           float64
	Timeout       time.Duration
	MaxAttempts   int
}

// Extractor is the model-based extraction pass. It satisfies
// services.ModelPass.
type Extractor struct {
	client  Client
	opts    Options
	limiter *rate.Limiter
	retry   *utils.RetryConfig
	logger  *utils.Logger
	availMu sync.Mutex
	probed  bool
	avail   bool
}

var _ services.ModelPass = (*Extractor)(nil)

// NewExtractor wraps client. A nil client yields an extractor that always
// reports the model as unavailable.
func NewExtractor(client Client, opts Options, logger *utils.Logger) *Extractor {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = 12000
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	logger = logger.With("llm")
	return &Extractor{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), 1),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxAttempts,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Logger:      logger,
		},
		logger: logger,
	}
}

// available probes the provider once per extractor.
func (e *Extractor) available(ctx context.Context) bool {
	if e.client == nil {
		return false
	}
	e.availMu.Lock()
	defer e.availMu.Unlock()
	if !e.probed {
		e.probed = true
		e.avail = e.client.Available(ctx)
		if !e.avail {
			e.logger.Warn("Model %s unavailable, continuing with pattern extraction only", e.client.Model())
		}
	}
	return e.avail
}

// Extract asks the model for the listing fields in pageText. It returns
// (nil, nil) when the model is unavailable and an error when the call or the
// answer fails. Fields that violate the schema are dropped individually.
func (e *Extractor) Extract(ctx context.Context, source, url, pageText string) (*models.RawCandidate, error) {
	if strings.TrimSpace(pageText) == "" || !e.available(ctx) {
		return nil, nil
	}
	prompt := fmt.Sprintf(extractionPrompt, services.Truncate(pageText, e.opts.MaxInputChars))

	var answer string
	err := e.retry.Do(ctx, "model extract "+url, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		out, err := e.client.GenerateJSON(callCtx, prompt)
		if err != nil {
			return err
		}
		answer = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("llm: extract %s: %w", url, err)
	}

	raw, doc, ok := parseAnswer(answer)
	if !ok {
		return nil, fmt.Errorf("llm: extract %s: answer is not JSON", url)
	}
	dropped, err := validateFields(raw, doc)
	if err != nil {
		return nil, err
	}
	for _, d := range dropped {
		e.logger.Debug("Dropped model field %s for %s: %s", d.Field, url, d.Message)
	}

	return toCandidate(source, url, doc), nil
}

func toCandidate(source, url string, doc map[string]any) *models.RawCandidate {
	c := &models.RawCandidate{
		Source:        source,
		URL:           url,
		Pass:          models.PassModel,
		Title:         str(doc, "title"),
		Currency:      strings.ToUpper(str(doc, "currency")),
		Address:       str(doc, "address"),
		City:          str(doc, "city"),
		Neighborhood:  str(doc, "neighborhood"),
		PostalCode:    str(doc, "postal_code"),
		PropertyType:  str(doc, "property_type"),
		EnergyLabel:   strings.ToUpper(str(doc, "energy_label")),
		AvailableFrom: str(doc, "available_date"),
		Description:   str(doc, "description_summary"),
		Price:         number(doc, "price"),
		Surface:       number(doc, "surface_m2"),
		Deposit:       number(doc, "deposit"),
		Furnished:     furnished(doc["furnished"]),
	}
	if v := number(doc, "rooms"); v != nil {
		c.Rooms = models.Int(int(*v))
	}
	if strings.EqualFold(c.AvailableFrom, "immediately") {
		c.AvailableFrom = "immediately"
	}
	return c
}

func str(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}

func number(doc map[string]any, key string) *float64 {
	if f, ok := doc[key].(float64); ok {
		return models.Float(f)
	}
	return nil
}

func furnished(v any) *bool {
	switch t := v.(type) {
	case bool:
		return models.Bool(t)
	case string:
		s := strings.ToLower(t)
		switch {
		case strings.Contains(s, "unfurn"), strings.Contains(s, "upholster"), strings.Contains(s, "gestoffeerd"),
			strings.Contains(s, "kaal"), s == "no":
			return models.Bool(false)
		case strings.Contains(s, "furnish"), strings.Contains(s, "gemeubileerd"), s == "yes":
			return models.Bool(true)
		}
	}
	return nil
}
