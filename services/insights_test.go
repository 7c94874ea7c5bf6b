package services

import (
	"bytes"
	"strings"
	"testing"

	"rental-scraper/models"
	"rental-scraper/utils"
)

func sampleListings() []*models.Listing {
	return []*models.Listing{
		{Source: "pararius", Title: "Kinkerstraat", Price: models.Float(1600), Surface: models.Float(80), URL: "https://x.nl/1",
			Neighborhood: &models.NeighborhoodScore{Name: "oud-west", Overall: 8.0},
			Commute:      &models.CommuteMetrics{CyclingMinutes: models.Float(18)}},
		{Source: "pararius", Title: "Ferdinand Bolstraat", Price: models.Float(1400), Surface: models.Float(50), URL: "https://x.nl/2",
			Neighborhood: &models.NeighborhoodScore{Name: "de pijp", Overall: 7.8},
			Commute:      &models.CommuteMetrics{CyclingMinutes: models.Float(12)}},
		{Source: "kamernet", Title: "Room Noord", Price: models.Float(700), URL: "https://x.nl/3",
			Neighborhood: &models.NeighborhoodScore{Name: "noord", Overall: 6.0}},
		{Source: "kamernet", Title: "Unknown price", URL: "https://x.nl/4"},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleListings())
	if r.TotalListings != 4 {
		t.Errorf("TotalListings: got %d, want 4", r.TotalListings)
	}
	if r.ListingsBySource["kamernet"] != 2 {
		t.Errorf("kamernet count: got %d, want 2", r.ListingsBySource["kamernet"])
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleListings())
	if r.AveragePrice != 1233.33 {
		t.Errorf("AveragePrice: got %.2f, want 1233.33", r.AveragePrice)
	}
	if r.MinPrice != 700 || r.MaxPrice != 1600 {
		t.Errorf("Min/Max: got %.0f/%.0f, want 700/1600", r.MinPrice, r.MaxPrice)
	}
	if r.MostExpensive == nil || r.MostExpensive.Title != "Kinkerstraat" {
		t.Errorf("MostExpensive: got %v", r.MostExpensive)
	}
	// (20 + 28) / 2
	if r.AveragePricePerM2 != 24 {
		t.Errorf("AveragePricePerM2: got %.2f, want 24", r.AveragePricePerM2)
	}
}

func TestInsightRankings(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(sampleListings())
	if len(r.BestNeighborhoods) != 3 || r.BestNeighborhoods[0].Neighborhood.Name != "oud-west" {
		t.Errorf("BestNeighborhoods: got %d entries", len(r.BestNeighborhoods))
	}
	if len(r.ShortestCommutes) != 2 || r.ShortestCommutes[0].Title != "Ferdinand Bolstraat" {
		t.Errorf("ShortestCommutes order wrong")
	}
	if r.ListingsByNeighborhood["noord"] != 1 {
		t.Errorf("noord count: got %d, want 1", r.ListingsByNeighborhood["noord"])
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	r := svc.Generate(nil)
	if r.TotalListings != 0 {
		t.Errorf("expected 0 total listings for empty input")
	}

	var buf bytes.Buffer
	svc.Print(&buf, r, nil)
	if !strings.Contains(buf.String(), "No price data available") {
		t.Errorf("empty report should say there is no price data")
	}
}
