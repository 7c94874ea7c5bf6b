package services

import (
	"testing"

	"rental-scraper/models"
)

func TestParseLocaleNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1.450", 1450},
		{"1,450", 1450},
		{"1.450,50", 1450.50},
		{"1,450.50", 1450.50},
		{"12 500", 12500},
		{"12 500", 12500},
		{"65", 65},
		{"65,5", 65.5},
		{"2.5", 2.5},
		{"1.234.567", 1234567},
	}
	for _, tt := range tests {
		got, ok := ParseLocaleNumber(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("ParseLocaleNumber(%q) = %v, %v; want %v", tt.raw, got, ok, tt.want)
		}
	}
	if _, ok := ParseLocaleNumber("abc"); ok {
		t.Error("ParseLocaleNumber(abc) should fail")
	}
}

func TestParsePrice(t *testing.T) {
	p := NewPatternExtractor("nl", "EUR")
	tests := []struct {
		raw      string
		want     float64
		currency string
	}{
		{"€1.450 /maand", 1450, "EUR"},
		{"€ 1.500,- per maand", 1500, "EUR"},
		{"EUR 1250 p/m", 1250, "EUR"},
		{"1.950 euro", 1950, "EUR"},
		{"Huurprijs: 1800", 1800, "EUR"},
		{"$2,100.00 monthly", 2100, "USD"},
		{"12 500 kr/mån", 12500, "EUR"},
		{"Hyra 9 800 SEK", 9800, "SEK"},
		{"Servicekosten € 45 per maand. Huurprijs € 1.450 per maand", 1450, "EUR"},
		{"Borg €2.900. Huurprijs €1.450", 1450, "EUR"},
		{"Parking € 150, rent € 1.600 per month", 1600, "EUR"},
	}
	for _, tt := range tests {
		got, cur, ok := p.ParsePrice(tt.raw)
		if !ok || got != tt.want || cur != tt.currency {
			t.Errorf("ParsePrice(%q) = %v %s %v; want %v %s", tt.raw, got, cur, ok, tt.want, tt.currency)
		}
	}

	se := NewPatternExtractor("se", "SEK")
	if got, cur, _ := se.ParsePrice("12 500 kr/mån"); got != 12500 || cur != "SEK" {
		t.Errorf("swedish kr: got %v %s", got, cur)
	}
	if _, _, ok := p.ParsePrice("no numbers here"); ok {
		t.Error("ParsePrice should fail without an amount")
	}
	if _, _, ok := p.ParsePrice("Borg € 2.900, servicekosten € 60"); ok {
		t.Error("ParsePrice should not read a deposit or side cost as rent")
	}
}

func TestParseSurface(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"65 m²", 65},
		{"65m2", 65},
		{"Woonoppervlakte: 82", 82},
		{"72,5 m²", 72.5},
		{"Boyta 48 kvm", 48},
		{"750 sq ft", 69.7},
	}
	for _, tt := range tests {
		got, ok := ParseSurface(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("ParseSurface(%q) = %v, %v; want %v", tt.raw, got, ok, tt.want)
		}
	}
}

func TestParseRooms(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"3 kamers", 3},
		{"3-kamerappartement", 3},
		{"2 rooms", 2},
		{"2,5 rum och kök", 2},
		{"3 rok", 3},
		{"2h+k", 2},
		{"Kamers: 4", 4},
		{"Cosy studio near Vondelpark", 1},
		{"Kaksio Kalliossa", 2},
		{"Apartment, 2 bedrooms, 80 m²", 3},
		{"2 slaapkamers", 3},
		{"Slaapkamers: 1", 2},
		{"4 kamers, waarvan 3 slaapkamers", 4},
	}
	for _, tt := range tests {
		got, ok := ParseRooms(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("ParseRooms(%q) = %v, %v; want %v", tt.raw, got, ok, tt.want)
		}
	}
}

func TestParsePostalCode(t *testing.T) {
	nl := NewPatternExtractor("Netherlands", "EUR")
	if got, ok := nl.ParsePostalCode("Kinkerstraat 12, 1053AB Amsterdam"); !ok || got != "1053 AB" {
		t.Errorf("NL postal: got %q, %v", got, ok)
	}
	if _, ok := nl.ParsePostalCode("€ 1450 EUR"); ok {
		t.Error("a price must not parse as a postal code")
	}
	se := NewPatternExtractor("Sweden", "SEK")
	if got, ok := se.ParsePostalCode("Götgatan 1, 116 46 Stockholm"); !ok || got != "116 46" {
		t.Errorf("SE postal: got %q, %v", got, ok)
	}
	fi := NewPatternExtractor("fi", "EUR")
	if got, ok := fi.NormalizePostalCode("00530"); !ok || got != "00530" {
		t.Errorf("FI bare postal: got %q, %v", got, ok)
	}
}

func TestExtractCombinedText(t *testing.T) {
	p := NewPatternExtractor("nl", "EUR")
	c := p.Extract(&models.RawCandidate{
		Source:   "pararius",
		URL:      "https://www.pararius.com/apartment-for-rent/amsterdam/x",
		Title:    "Apartment Kinkerstraat",
		PageText: "€1.450 /maand\n65 m²\n3 kamers\nGemeubileerd\nEnergielabel: A+\nBorg: € 2.900\nBeschikbaar per direct\n1053 AB Amsterdam",
	})
	if c.Pass != models.PassPattern {
		t.Errorf("Pass: got %s", c.Pass)
	}
	if c.Price == nil || *c.Price != 1450 || c.Currency != "EUR" {
		t.Errorf("price: got %v %s", c.Price, c.Currency)
	}
	if c.Surface == nil || *c.Surface != 65 {
		t.Errorf("surface: got %v", c.Surface)
	}
	if c.Rooms == nil || *c.Rooms != 3 {
		t.Errorf("rooms: got %v", c.Rooms)
	}
	if c.Furnished == nil || !*c.Furnished {
		t.Errorf("furnished: got %v", c.Furnished)
	}
	if c.EnergyLabel != "A+" {
		t.Errorf("energy label: got %q", c.EnergyLabel)
	}
	if c.Deposit == nil || *c.Deposit != 2900 {
		t.Errorf("deposit: got %v", c.Deposit)
	}
	if c.AvailableFrom != "immediately" {
		t.Errorf("available: got %q", c.AvailableFrom)
	}
	if c.PostalCode != "1053 AB" {
		t.Errorf("postal: got %q", c.PostalCode)
	}
	if c.PropertyType != "apartment" {
		t.Errorf("property type: got %q", c.PropertyType)
	}
}

func TestParseFurnished(t *testing.T) {
	tests := []struct {
		raw  string
		want *bool
	}{
		{"Unfurnished apartment", models.Bool(false)},
		{"Ongemeubileerd", models.Bool(false)},
		{"Gestoffeerd opgeleverd", models.Bool(false)},
		{"Fully furnished", models.Bool(true)},
		{"Möblerad lägenhet", models.Bool(true)},
		{"nothing", nil},
	}
	for _, tt := range tests {
		got := parseFurnished(tt.raw)
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("parseFurnished(%q) = %v; want %v", tt.raw, got, tt.want)
		}
	}
}
