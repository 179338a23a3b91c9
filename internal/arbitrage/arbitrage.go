// Package arbitrage compares crawled listings across sites and surfaces
// pairs where reselling clears a profit margin. It is a read model over
// already-stored products; nothing here writes.
package arbitrage

import (
	"sort"
	"strings"
	"time"

	"github.com/maltedev/cloudstore/internal/models"
)

// Opportunity is one source-to-target resale candidate. Source is where the
// item is bought, target where it sells higher.
type Opportunity struct {
	SourceSite         string       `json:"source_site"`
	SourceProductID    string       `json:"source_product_id"`
	SourceTitle        string       `json:"source_title"`
	TargetSite         string       `json:"target_site"`
	TargetProductID    string       `json:"target_product_id"`
	TargetTitle        string       `json:"target_title"`
	SourcePrice        models.Money `json:"source_price"`
	TargetPrice        models.Money `json:"target_price"`
	PriceDifference    float64      `json:"price_difference"`
	ProfitMargin       float64      `json:"profit_margin"`
	EstimatedNetProfit float64      `json:"estimated_net_profit"`
	ConfidenceScore    float64      `json:"confidence_score"`
	IdentifiedAt       time.Time    `json:"identified_at"`
}

// Params tunes one analysis run.
type Params struct {
	// MinProfitMargin is the gross margin floor in percent.
	MinProfitMargin float64
	// ConfidenceThreshold drops pairs that do not look like the same item.
	ConfidenceThreshold float64
	// ShippingCost and OtherFees come off the gross difference before the
	// net-profit check.
	ShippingCost float64
	OtherFees    float64
}

func DefaultParams() Params {
	return Params{
		MinProfitMargin:     10.0,
		ConfidenceThreshold: 70.0,
	}
}

// Report is the outcome of one analysis run, opportunities sorted by
// profit margin descending.
type Report struct {
	Opportunities        []Opportunity `json:"opportunities"`
	TotalFound           int           `json:"total_found"`
	TotalProfitPotential float64       `json:"total_profit_potential"`
	AverageProfitMargin  float64       `json:"average_profit_margin"`
}

// Analyze runs a pairwise comparison over the given products. Pairs are
// directional: each product is tried as the buy side against every other
// as the sell side. Listings priced in different currencies are never
// paired; margin math without an FX rate would be noise.
func Analyze(products []models.Product, params Params, now time.Time) Report {
	var report Report

	for i := range products {
		source := &products[i]
		if source.Price.Current.Value <= 0 {
			continue
		}
		for j := range products {
			if i == j {
				continue
			}
			target := &products[j]
			if source.Site == target.Site && source.ID == target.ID {
				continue
			}
			if source.Price.Current.Currency != target.Price.Current.Currency {
				continue
			}
			if target.Price.Current.Value <= source.Price.Current.Value {
				continue
			}

			diff := target.Price.Current.Value - source.Price.Current.Value
			margin := diff / source.Price.Current.Value * 100
			if margin < params.MinProfitMargin {
				continue
			}

			net := diff - params.ShippingCost - params.OtherFees
			if net <= 0 {
				continue
			}

			score := Confidence(source, target)
			if score < params.ConfidenceThreshold {
				continue
			}

			report.Opportunities = append(report.Opportunities, Opportunity{
				SourceSite:         source.Site,
				SourceProductID:    source.ID,
				SourceTitle:        source.Title,
				TargetSite:         target.Site,
				TargetProductID:    target.ID,
				TargetTitle:        target.Title,
				SourcePrice:        source.Price.Current,
				TargetPrice:        target.Price.Current,
				PriceDifference:    diff,
				ProfitMargin:       margin,
				EstimatedNetProfit: net,
				ConfidenceScore:    score,
				IdentifiedAt:       now,
			})
			report.TotalProfitPotential += net
			report.AverageProfitMargin += margin
		}
	}

	report.TotalFound = len(report.Opportunities)
	if report.TotalFound > 0 {
		report.AverageProfitMargin /= float64(report.TotalFound)
	}

	sort.SliceStable(report.Opportunities, func(i, j int) bool {
		return report.Opportunities[i].ProfitMargin > report.Opportunities[j].ProfitMargin
	})

	return report
}

// Confidence scores how likely two listings are the same physical item,
// 0 to 100. Cross-site pairs score higher than same-site ones; the rest
// comes from title overlap and matching brand, model spec, and category.
func Confidence(source, target *models.Product) float64 {
	score := 0.0

	if source.Site != target.Site {
		score += 20
	}

	score += titleSimilarity(source.Title, target.Title) * 30

	if source.Brand != "" && strings.EqualFold(source.Brand, target.Brand) {
		score += 20
	}
	if m := specValue(source, "model"); m != "" && strings.EqualFold(m, specValue(target, "model")) {
		score += 20
	}
	if source.CategoryID != "" && source.CategoryID == target.CategoryID {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

// titleSimilarity is the Jaccard index over lowercased title words.
func titleSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func specValue(p *models.Product, name string) string {
	for _, spec := range p.Specs {
		if strings.EqualFold(spec.Name, name) {
			return spec.Value
		}
	}
	return ""
}
