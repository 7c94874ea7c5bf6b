package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"rental-scraper/models"
)

// num matches a locale-formatted number: grouped thousands ("1.450",
// "12 500", "1,200.50") or a plain number with an optional decimal part.
const num = `(\d{1,3}(?:[.,\x{00A0}\x{202F} ]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

const currencyToken = `(€|eur(?:o|os)?\b|\$|usd\b|£|gbp\b|chf\b|sek\b|nok\b|dkk\b|kr\.?|:-)`

var (
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)` + currencyToken + `\s*` + num),
		regexp.MustCompile(`(?i)` + num + `\s*` + currencyToken),
		regexp.MustCompile(`(?i)(?:huur(?:prijs)?|rent|price|hyra|vuokra)[:\s]*` + num),
	}

	surfacePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)` + num + `\s*(?:m²|m2|㎡|m\^2|sqm|sq\.?\s?m\b|kvm|vierkante meter|neliö)`),
		regexp.MustCompile(`(?i)(?:woon)?(?:opp(?:ervlakte)?|living\s*area|surface|boyta|pinta-ala)[:\s]*` + num),
	}
	sqftPattern = regexp.MustCompile(`(?i)` + num + `\s*(?:sq\.?\s?ft|sqft|ft²)`)

	roomPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,2}(?:[.,]5)?)\s*-?\s*kamers?`),
		regexp.MustCompile(`(?i)(\d{1,2}(?:[.,]5)?)\s*(?:rooms?|rum|rok|huonetta)\b`),
		regexp.MustCompile(`(?i)(\d{1,2})\s*h\s*\+\s*k`),
		regexp.MustCompile(`(?i)\b(?:kamers?|rooms?|antal rum)[:\s]*(\d{1,2})\b`),
	}
	// Bedroom counts exclude the living room.
	bedroomPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,2})\s*(?:slaapkamers?|bedrooms?|sovrum|makuuhuonetta)\b`),
		regexp.MustCompile(`(?i)\b(?:slaapkamers?|bedrooms?|sovrum)[:\s]*(\d{1,2})\b`),
	}
	// Single-word room-count idioms. Studios count as one room.
	roomWords = map[string]int{
		"studio": 1, "studiootti": 1, "yksiö": 1, "etta": 1, "eenkamerappartement": 1,
		"tvåa": 2, "kaksio": 2,
		"trea": 3, "kolmio": 3,
		"fyra": 4,
	}

	depositPattern     = regexp.MustCompile(`(?i)(?:borg|deposit|waarborgsom|deposition|takuuvuokra)[:\s]*(?:€|eur|kr)?\s*` + num)
	energyLabelPattern = regexp.MustCompile(`(?i)(?:energie\s*label|energy\s*label|energiklass)[:\s]*([A-G](?:\+{1,4})?)(?:[^A-Za-z]|$)`)
	availableDate      = regexp.MustCompile(`(?i)(?:beschikbaar|available|tillträde|vapaa)\s*(?:from|vanaf|per)?[:\s]*(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{4}-\d{1,2}-\d{1,2})`)

	postalNL = regexp.MustCompile(`\b(\d{4})\s?([A-Z]{2})\b`)
	postalSE = regexp.MustCompile(`\b(\d{3})\s(\d{2})\s+[A-ZÅÄÖ][a-zåäö]+`)
	postalFI = regexp.MustCompile(`\b(\d{5})\s+[A-ZÅÄÖ][a-zåäö]+`)

	barePostal = map[string]*regexp.Regexp{
		"nl": regexp.MustCompile(`^(\d{4})\s?([A-Z]{2})$`),
		"se": regexp.MustCompile(`^(?:SE-?)?(\d{3})\s?(\d{2})$`),
		"fi": regexp.MustCompile(`^(\d{5})$`),
	}

	roomKeywords = []string{
		"kamer te huur", "studentenkamer", "room for rent", "room in ", "private room",
		"shared", "gedeeld", "inneboende", "rum i ", "kimppa",
	}
	costLabels = []string{
		"borg", "deposit", "waarborg", "deposition", "takuuvuokra",
		"servicekosten", "service cost", "service charge", "parkeer", "parking", "garage",
		"energiekosten", "stookkosten", "makelaarskosten", "agency fee",
	}

	studioKeywords    = []string{"studio", "yksiö", "etta"}
	apartmentKeywords = []string{"appartement", "apartment", "flat", "lägenhet", "asunto", "bovenwoning", "benedenwoning"}
	houseKeywords     = []string{"eengezinswoning", "woonhuis", "house", "villa", "radhus", "rivitalo"}
)

var currencyCodes = map[string]string{
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"$": "USD", "usd": "USD",
	"£": "GBP", "gbp": "GBP",
	"chf": "CHF", "sek": "SEK", "nok": "NOK", "dkk": "DKK",
}

// PatternExtractor is the deterministic extraction pass: a fixed library of
// per-field recognizers tolerant of locale variations.
type PatternExtractor struct {
	// Country selects the postal code format: "nl", "se" or "fi".
	Country string
	// LocalCurrency is assumed for ambiguous tokens like "kr" and ":-".
	LocalCurrency string
}

// NewPatternExtractor returns an extractor for the given country and local currency.
func NewPatternExtractor(country, localCurrency string) *PatternExtractor {
	return &PatternExtractor{Country: countryCode(country), LocalCurrency: strings.ToUpper(localCurrency)}
}

func countryCode(country string) string {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "se", "sweden", "sverige":
		return "se"
	case "fi", "finland", "suomi":
		return "fi"
	}
	return "nl"
}

// Extract runs every recognizer over the candidate's focused field texts
// first, then over its page text, and returns a pattern-pass candidate.
func (p *PatternExtractor) Extract(in *models.RawCandidate) *models.RawCandidate {
	if in.Currency != "" && !strings.EqualFold(in.Currency, p.LocalCurrency) {
		local := *p
		local.LocalCurrency = strings.ToUpper(in.Currency)
		p = &local
	}

	out := &models.RawCandidate{Source: in.Source, URL: in.URL, Pass: models.PassPattern}
	full := strings.Join(nonEmpty(in.Title, in.Description, in.PageText), "\n")

	for _, t := range nonEmpty(in.PriceText, full) {
		if amount, cur, ok := p.ParsePrice(t); ok {
			out.Price = &amount
			out.Currency = cur
			break
		}
	}
	for _, t := range nonEmpty(in.SurfaceText, full) {
		if v, ok := ParseSurface(t); ok {
			out.Surface = &v
			break
		}
	}
	for _, t := range nonEmpty(in.RoomsText, in.Title, full) {
		if v, ok := ParseRooms(t); ok {
			out.Rooms = &v
			break
		}
	}
	for _, t := range nonEmpty(in.PostalCode, in.Address, full) {
		if pc, ok := p.ParsePostalCode(t); ok {
			out.PostalCode = pc
			break
		}
	}

	if m := depositPattern.FindStringSubmatch(full); m != nil {
		if v, ok := ParseLocaleNumber(m[1]); ok {
			out.Deposit = &v
		}
	}
	if m := energyLabelPattern.FindStringSubmatch(full); m != nil {
		out.EnergyLabel = strings.ToUpper(m[1])
	}
	out.Furnished = parseFurnished(full)
	out.AvailableFrom = parseAvailable(full)
	out.PropertyType = parsePropertyType(strings.Join(nonEmpty(in.PropertyType, in.Title, in.URL), "\n"))
	if out.PropertyType == "" {
		out.PropertyType = parsePropertyType(in.Description)
	}
	return out
}

// Monthly rent outside this range, in any supported currency, is some other
// figure on the page: service costs, parking or a typo.
const (
	minRentAmount = 100
	maxRentAmount = 100000
)

// ParsePrice finds the first plausible rent amount in text and its ISO
// currency. Amounts introduced by a deposit or side-cost label are skipped.
// Amounts without a currency token are assumed to be in the local currency.
func (p *PatternExtractor) ParsePrice(text string) (float64, string, bool) {
	for i, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if costLabelled(text, m[0]) {
				continue
			}
			var raw, token string
			switch i {
			case 0:
				token, raw = text[m[2]:m[3]], text[m[4]:m[5]]
			case 1:
				raw, token = text[m[2]:m[3]], text[m[4]:m[5]]
			default:
				raw = text[m[2]:m[3]]
			}
			v, ok := ParseLocaleNumber(raw)
			if !ok || v < minRentAmount || v > maxRentAmount {
				continue
			}
			return v, p.currencyFor(token), true
		}
	}
	return 0, "", false
}

// costLabelled reports whether the words between the previous number and
// offset name a deposit or a side cost.
func costLabelled(text string, offset int) bool {
	lead := text[max(0, offset-40):offset]
	if i := strings.LastIndexFunc(lead, unicode.IsDigit); i >= 0 {
		lead = lead[i+1:]
	}
	return containsAny(strings.ToLower(lead), costLabels...)
}

func (p *PatternExtractor) currencyFor(token string) string {
	t := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(token), "."))
	if code, ok := currencyCodes[t]; ok {
		return code
	}
	if p.LocalCurrency != "" {
		return p.LocalCurrency
	}
	return "EUR"
}

// ParseSurface returns an area in square meters. Square feet are converted.
func ParseSurface(text string) (float64, bool) {
	for _, re := range surfacePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := ParseLocaleNumber(m[1]); ok && v > 0 {
				return v, true
			}
		}
	}
	if m := sqftPattern.FindStringSubmatch(text); m != nil {
		if v, ok := ParseLocaleNumber(m[1]); ok && v > 0 {
			return math.Round(v*0.09290304*10) / 10, true
		}
	}
	return 0, false
}

// ParseRooms returns an integer room count. Half rooms are rounded down and
// studio idioms count as one room. A bare bedroom count adds the living room.
func ParseRooms(text string) (int, bool) {
	for _, re := range roomPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := ParseLocaleNumber(m[1]); ok && v >= 1 {
				return int(math.Floor(v)), true
			}
		}
	}
	for _, re := range bedroomPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v >= 1 {
				return v + 1, true
			}
		}
	}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if n, ok := roomWords[w]; ok {
			return n, true
		}
	}
	return 0, false
}

// ParsePostalCode returns a normalized postal code for the extractor's country.
func (p *PatternExtractor) ParsePostalCode(text string) (string, bool) {
	switch p.Country {
	case "se":
		if m := postalSE.FindStringSubmatch(text); m != nil {
			return m[1] + " " + m[2], true
		}
	case "fi":
		if m := postalFI.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	default:
		if m := postalNL.FindStringSubmatch(text); m != nil {
			return m[1] + " " + m[2], true
		}
	}
	return "", false
}

// NormalizePostalCode validates a bare postal code against the country format
// and returns it in canonical spacing.
func (p *PatternExtractor) NormalizePostalCode(code string) (string, bool) {
	re := barePostal[p.Country]
	m := re.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(code)))
	if m == nil {
		return "", false
	}
	if len(m) == 3 {
		return m[1] + " " + m[2], true
	}
	return m[1], true
}

// ParseLocaleNumber parses numbers written with either decimal convention.
// When both '.' and ',' occur the last one is the decimal separator. A single
// separator followed by exactly three digits groups thousands.
func ParseLocaleNumber(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00A0' || r == '\u202F' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := "."
		grp := ","
		if lastComma > lastDot {
			dec, grp = ",", "."
		}
		s = strings.ReplaceAll(s, grp, "")
		s = strings.Replace(s, dec, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(s, sep) > 1 || len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, sep, "")
		} else {
			s = strings.Replace(s, sep, ".", 1)
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFurnished(text string) *bool {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, "unfurnished", "ongemeubileerd", "omöblerad", "kalustamaton", "kaal opgeleverd"):
		return models.Bool(false)
	case containsAny(t, "upholstered", "gestoffeerd"):
		return models.Bool(false)
	case containsAny(t, "furnished", "gemeubileerd", "möblerad", "kalustettu"):
		return models.Bool(true)
	}
	return nil
}

func parseAvailable(text string) string {
	t := strings.ToLower(text)
	if containsAny(t, "per direct", "immediately", "direct beschikbaar", "nu beschikbaar", "omgående", "heti vapaa") {
		return "immediately"
	}
	if m := availableDate.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// parsePropertyType classifies free text as room, studio, apartment or house.
func parsePropertyType(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "/kamer-") || strings.Contains(t, "/room-") || containsAny(t, roomKeywords...):
		return "room"
	case containsAny(t, studioKeywords...):
		return "studio"
	case containsAny(t, apartmentKeywords...):
		return "apartment"
	case containsAny(t, houseKeywords...):
		return "house"
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func nonEmpty(ss ...string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
