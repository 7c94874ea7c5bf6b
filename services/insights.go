package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"rental-scraper/models"
	"rental-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		ListingsBySource:       make(map[string]int),
		ListingsByNeighborhood: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priced, scored, commuting []*models.Listing
	var ppmTotal float64
	var ppmCount int

	for _, l := range listings {
		report.ListingsBySource[l.Source]++
		if l.Price != nil {
			priced = append(priced, l)
		}
		if v := l.PricePerSquareMeter(); v > 0 {
			ppmTotal += v
			ppmCount++
		}
		if l.Neighborhood != nil {
			scored = append(scored, l)
			report.ListingsByNeighborhood[l.Neighborhood.Name]++
		}
		if l.Commute != nil && l.Commute.CyclingMinutes != nil {
			commuting = append(commuting, l)
		}
	}

	if len(priced) > 0 {
		report.MinPrice = *priced[0].Price
		report.MaxPrice = *priced[0].Price
		report.MostExpensive = priced[0]
		var total float64
		for _, l := range priced {
			p := *l.Price
			total += p
			if p < report.MinPrice {
				report.MinPrice = p
			}
			if p > report.MaxPrice {
				report.MaxPrice = p
				report.MostExpensive = l
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}
	if ppmCount > 0 {
		report.AveragePricePerM2 = round2(ppmTotal / float64(ppmCount))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Neighborhood.Overall > scored[j].Neighborhood.Overall
	})
	report.BestNeighborhoods = top(scored, 5)

	sort.SliceStable(commuting, func(i, j int) bool {
		return *commuting[i].Commute.CyclingMinutes < *commuting[j].Commute.CyclingMinutes
	})
	report.ShortestCommutes = top(commuting, 5)

	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport, stats *models.StoreStats) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  RENTAL LISTING INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings : \033[1m%d\033[0m\n", r.TotalListings)
	if stats != nil {
		fmt.Fprintf(w, "  Geocoded       : \033[1m%d\033[0m\n", stats.Geocoded)
		fmt.Fprintf(w, "  With score     : \033[1m%d\033[0m\n", stats.WithScore)
		if !stats.Newest.IsZero() {
			fmt.Fprintf(w, "  Last seen      : %s\n", stats.Newest.Local().Format("2006-01-02 15:04"))
		}
	}
	for _, src := range sortedKeys(r.ListingsBySource) {
		fmt.Fprintf(w, "  %-14s : %d\n", src, r.ListingsBySource[src])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics (per month)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m€%.0f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m€%.0f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m€%.0f\033[0m\n", r.MaxPrice)
		if r.AveragePricePerM2 > 0 {
			fmt.Fprintf(w, "  Average /m²   : \033[1;32m€%.2f\033[0m\n", r.AveragePricePerM2)
		}
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Best Neighborhood Scores\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.BestNeighborhoods) == 0 {
		fmt.Fprintf(w, "  No scored listings found\n")
	}
	for i, l := range r.BestNeighborhoods {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-34s %-12s \033[1;32m%.1f\033[0m\n",
			i+1, truncate(l.Title, 32), truncate(l.Neighborhood.Name, 12), l.Neighborhood.Overall)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Shortest Cycling Commutes\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ShortestCommutes) == 0 {
		fmt.Fprintf(w, "  No commute data\n")
	}
	for i, l := range r.ShortestCommutes {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%.0f min\033[0m\n",
			i+1, truncate(l.Title, 38), *l.Commute.CyclingMinutes)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Neighborhood\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByNeighborhood) == 0 {
		fmt.Fprintf(w, "  No neighborhood data\n")
	} else {
		names := sortedKeys(r.ListingsByNeighborhood)
		sort.SliceStable(names, func(i, j int) bool {
			return r.ListingsByNeighborhood[names[i]] > r.ListingsByNeighborhood[names[j]]
		})
		for _, n := range names {
			c := r.ListingsByNeighborhood[n]
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(n, 28), strings.Repeat("█", c), c)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func top(ls []*models.Listing, n int) []*models.Listing {
	if len(ls) > n {
		return ls[:n]
	}
	return ls
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
