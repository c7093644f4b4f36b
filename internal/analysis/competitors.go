package analysis

import (
	"fmt"
	"strings"
)

type competitorSeed struct {
	name        string
	description string
	similarity  int
}

type keywordCatalogue struct {
	keywords    []string
	competitors []competitorSeed
}

// Checked in order; the first catalogue whose keyword appears in the
// solution supplies the fallback list.
var solutionCatalogues = []keywordCatalogue{
	{keywords: []string{"payment", "pay", "finance"}, competitors: []competitorSeed{
		{"Stripe", "Payment processing infrastructure", 85},
		{"Square", "Point-of-sale and payment solutions", 75},
		{"PayPal", "Digital payment platform", 70},
		{"Plaid", "Financial data connectivity", 65},
	}},
	{keywords: []string{"healthcare", "health", "medical"}, competitors: []competitorSeed{
		{"Teladoc", "Virtual healthcare platform", 80},
		{"Zocdoc", "Healthcare appointment booking", 70},
		{"23andMe", "Genetic testing services", 60},
		{"Headspace", "Mental health and wellness app", 55},
	}},
	{keywords: []string{"education", "learn", "teach", "course"}, competitors: []competitorSeed{
		{"Coursera", "Online courses and degrees", 75},
		{"Udemy", "Skill-based learning platform", 70},
		{"Khan Academy", "Free educational resources", 65},
		{"Duolingo", "Language learning platform", 60},
	}},
	{keywords: []string{"ecommerce", "marketplace", "shop", "retail"}, competitors: []competitorSeed{
		{"Shopify", "E-commerce platform for businesses", 80},
		{"Amazon", "Online marketplace and retail", 75},
		{"Etsy", "Handmade and vintage marketplace", 70},
		{"BigCommerce", "SaaS e-commerce platform", 65},
	}},
	{keywords: []string{"ai", "machine learning", "artificial intelligence"}, competitors: []competitorSeed{
		{"OpenAI", "AI research and development company", 85},
		{"Anthropic", "AI safety and research", 75},
		{"Cohere", "Enterprise AI platform", 70},
		{"Hugging Face", "AI model sharing platform", 65},
	}},
	{keywords: []string{"software", "saas", "platform", "app"}, competitors: []competitorSeed{
		{"Salesforce", "CRM and cloud software", 75},
		{"Microsoft", "Enterprise software solutions", 70},
		{"Slack", "Team collaboration platform", 65},
		{"Notion", "All-in-one workspace", 60},
	}},
	{keywords: []string{"food", "delivery", "restaurant"}, competitors: []competitorSeed{
		{"DoorDash", "Food delivery platform", 80},
		{"Uber Eats", "Food delivery service", 75},
		{"Grubhub", "Food ordering and delivery", 70},
		{"Instacart", "Grocery delivery service", 65},
	}},
	{keywords: []string{"travel", "booking", "hotel"}, competitors: []competitorSeed{
		{"Airbnb", "Home sharing and travel platform", 80},
		{"Booking.com", "Travel booking platform", 75},
		{"Expedia", "Online travel booking", 70},
		{"TripAdvisor", "Travel reviews and booking", 65},
	}},
}

var industryCompetitors = map[string][]competitorSeed{
	"Technology": {
		{"Microsoft", "Enterprise software solutions", 60},
		{"Google", "Cloud and AI services", 55},
		{"Amazon Web Services", "Cloud computing infrastructure", 50},
		{"Apple", "Consumer technology products", 45},
	},
	"Healthcare": {
		{"Teladoc", "Telemedicine platform", 70},
		{"23andMe", "Genetic testing services", 60},
		{"Zocdoc", "Healthcare appointment booking", 55},
		{"Headspace", "Mental health and wellness", 50},
	},
	"Finance": {
		{"Stripe", "Payment processing", 75},
		{"Plaid", "Financial data connectivity", 65},
		{"Robinhood", "Commission-free trading platform", 60},
		{"Chime", "Digital banking platform", 55},
	},
	"E-commerce": {
		{"Shopify", "E-commerce platform for businesses", 75},
		{"Amazon", "Online marketplace and retail", 70},
		{"Etsy", "Handmade and vintage marketplace", 65},
		{"BigCommerce", "SaaS e-commerce platform", 60},
	},
	"Education": {
		{"Coursera", "Online learning platform", 75},
		{"Udemy", "Online course marketplace", 70},
		{"Khan Academy", "Free online educational platform", 65},
		{"Duolingo", "Language learning app", 60},
	},
	"Entertainment": {
		{"Netflix", "Streaming entertainment platform", 70},
		{"Spotify", "Music streaming service", 65},
		{"Disney+", "Entertainment streaming", 60},
		{"YouTube", "Video sharing platform", 55},
	},
	"Real Estate": {
		{"Zillow", "Real estate marketplace", 75},
		{"Redfin", "Real estate brokerage", 70},
		{"Realtor.com", "Real estate listings", 65},
		{"Airbnb", "Property rental platform", 60},
	},
	"Transportation": {
		{"Uber", "Ride-sharing platform", 75},
		{"Lyft", "Ride-sharing service", 70},
		{"DoorDash", "Food delivery platform", 65},
		{"Instacart", "Grocery delivery service", 60},
	},
}

// Related-industry fallbacks used when the submitted industry has no table.
var relatedIndustries = []struct {
	keywords []string
	industry string
}{
	{[]string{"tech", "software", "app"}, "Technology"},
	{[]string{"health", "medical"}, "Healthcare"},
	{[]string{"finance", "pay", "money"}, "Finance"},
	{[]string{"shop", "sell", "marketplace"}, "E-commerce"},
	{[]string{"learn", "teach", "school"}, "Education"},
}

// FallbackCompetitors returns a curated competitor list used whenever live
// search comes back empty. It always returns at least three entries.
func FallbackCompetitors(solution, industry string) []Competitor {
	lower := strings.ToLower(solution)
	for _, cat := range solutionCatalogues {
		if containsAny(lower, cat.keywords...) {
			return seedsToCompetitors(cat.competitors)
		}
	}
	if seeds, ok := industryCompetitors[industry]; ok {
		return seedsToCompetitors(seeds)
	}
	for _, rel := range relatedIndustries {
		if containsAny(lower, rel.keywords...) {
			return seedsToCompetitors(industryCompetitors[rel.industry])
		}
	}
	label := industry
	if label == "" {
		label = "technology"
	}
	short := industry
	if short == "" {
		short = "tech"
	}
	return []Competitor{
		{Name: "Industry Leader", Description: fmt.Sprintf("Major player in %s", label), Similarity: Some(50)},
		{Name: "Established Competitor", Description: fmt.Sprintf("Well-known %s company", short), Similarity: Some(45)},
		{Name: "Market Player", Description: fmt.Sprintf("Active competitor in %s sector", label), Similarity: Some(40)},
	}
}

func seedsToCompetitors(seeds []competitorSeed) []Competitor {
	out := make([]Competitor, len(seeds))
	for i, s := range seeds {
		out[i] = Competitor{Name: s.name, Description: s.description, Similarity: Some(s.similarity)}
	}
	return out
}
