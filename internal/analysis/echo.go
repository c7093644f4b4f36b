package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultMarketSize     = "1000"
	defaultAddressable    = "100"
	defaultMarketGrowth   = "10%"
	defaultAverageFunding = "$1M"
	maxEchoCompetitors    = 6
)

var leadingNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// roundHalfUp rounds to the nearest integer, with .5 going up.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// FormatBillions renders a number at full precision.
func FormatBillions(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatAddressable and FormatGrowth round to one decimal for prose.
func FormatAddressable(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func FormatGrowth(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

// ParseLeadingNumber pulls the first number out of strings like "13.2%" or
// "$520.0B".
func ParseLeadingNumber(s string) (float64, bool) {
	m := leadingNumberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// EchoSnapshot converts a snapshot into the realWorldData block of a report,
// substituting display defaults for missing values. Numbers keep full
// precision so SnapshotFromEcho gives back the same values.
func EchoSnapshot(snap MarketSnapshot) RealWorldData {
	rwd := RealWorldData{
		MarketSize:           defaultMarketSize,
		AddressableMarket:    defaultAddressable,
		MarketGrowth:         defaultMarketGrowth,
		Competitors:          capCompetitors(snap.Competitors),
		MarketValidation:     snap.Validation,
		IndustryInsights:     snap.Insights,
		TechnicalFeasibility: snap.Technical,
		FundingInfo: FundingInfo{
			AverageFunding:   defaultAverageFunding,
			TypicalInvestors: []string{"Angel Investors"},
			RecentRounds:     []FundingRound{},
		},
		IndustryTrends: []string{},
		RecentNews:     []NewsItem{},
	}
	if v, ok := snap.TotalMarket.Get(); ok {
		rwd.MarketSize = FormatBillions(v)
	}
	if v, ok := snap.AddressableMarket.Get(); ok {
		rwd.AddressableMarket = FormatBillions(v)
	}
	if v, ok := snap.Growth.Get(); ok {
		rwd.MarketGrowth = FormatBillions(v) + "%"
	}
	if f, ok := snap.Funding.Get(); ok {
		if f.AverageRaise != "" {
			rwd.FundingInfo.AverageFunding = f.AverageRaise
		}
		if len(f.Investors) > 0 {
			rwd.FundingInfo.TypicalInvestors = f.Investors
		}
		if f.RecentRounds != nil {
			rwd.FundingInfo.RecentRounds = f.RecentRounds
		}
	}
	if ins, ok := snap.Insights.Get(); ok && ins.Trends != nil {
		rwd.IndustryTrends = ins.Trends
	}
	if snap.News != nil {
		rwd.RecentNews = snap.News
	}
	return rwd
}

// SnapshotFromEcho rebuilds the comparable parts of a snapshot from a stored
// report so comparison metrics can be recomputed later.
func SnapshotFromEcho(rwd RealWorldData) MarketSnapshot {
	snap := MarketSnapshot{
		Competitors: rwd.Competitors,
		Validation:  rwd.MarketValidation,
		Insights:    rwd.IndustryInsights,
		Technical:   rwd.TechnicalFeasibility,
		News:        rwd.RecentNews,
	}
	if v, ok := ParseLeadingNumber(rwd.MarketSize); ok {
		snap.TotalMarket = Some(v)
	}
	if v, ok := ParseLeadingNumber(rwd.AddressableMarket); ok {
		snap.AddressableMarket = Some(v)
	}
	if v, ok := ParseLeadingNumber(rwd.MarketGrowth); ok {
		snap.Growth = Some(v)
	}
	if rwd.FundingInfo.AverageFunding != "" || len(rwd.FundingInfo.TypicalInvestors) > 0 {
		snap.Funding = Some(FundingLandscape{
			AverageRaise: rwd.FundingInfo.AverageFunding,
			Investors:    rwd.FundingInfo.TypicalInvestors,
			RecentRounds: rwd.FundingInfo.RecentRounds,
		})
	}
	return snap
}

func capCompetitors(in []Competitor) []Competitor {
	if len(in) > maxEchoCompetitors {
		in = in[:maxEchoCompetitors]
	}
	out := make([]Competitor, len(in))
	copy(out, in)
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
