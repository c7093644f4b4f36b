package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ValidateAnalysis checks that a report carries every required field with
// in-range values. Mock and model-generated reports must both pass it.
func ValidateAnalysis(a Analysis) error {
	var errs []error
	axes := []struct {
		name  string
		value int
	}{
		{"overallScore", a.OverallScore},
		{"marketPotential", a.MarketPotential},
		{"feasibility", a.Feasibility},
		{"competition", a.Competition},
		{"riskLevel", a.RiskLevel},
		{"innovationIndex", a.InnovationIndex},
	}
	for _, ax := range axes {
		if ax.value < 0 || ax.value > 100 {
			errs = append(errs, fmt.Errorf("%s out of range: %d", ax.name, ax.value))
		}
	}
	if a.SWOT.Strengths == nil || a.SWOT.Weaknesses == nil || a.SWOT.Opportunities == nil || a.SWOT.Threats == nil {
		errs = append(errs, errors.New("swot requires strengths, weaknesses, opportunities and threats"))
	}
	if a.TargetAudience == nil {
		errs = append(errs, errors.New("targetAudience is required"))
	}
	for i, aud := range a.TargetAudience {
		if strings.TrimSpace(aud.Name) == "" {
			errs = append(errs, fmt.Errorf("targetAudience[%d].name is required", i))
		}
	}
	if a.MonetizationStrategies == nil {
		errs = append(errs, errors.New("monetizationStrategies is required"))
	}
	for i, m := range a.MonetizationStrategies {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("monetizationStrategies[%d].name is required", i))
		}
		if m.Fit < 0 || m.Fit > 100 {
			errs = append(errs, fmt.Errorf("monetizationStrategies[%d].fit out of range: %d", i, m.Fit))
		}
	}
	if a.PitchTips == nil {
		errs = append(errs, errors.New("pitchTips is required"))
	}
	if a.Roadmap == nil {
		errs = append(errs, errors.New("roadmap is required"))
	}
	for i, r := range a.Roadmap {
		if strings.TrimSpace(r.Phase) == "" || strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Duration) == "" {
			errs = append(errs, fmt.Errorf("roadmap[%d] requires phase, title and duration", i))
		}
	}
	rwd := a.RealWorldData
	if strings.TrimSpace(rwd.MarketSize) == "" {
		errs = append(errs, errors.New("realWorldData.marketSize is required"))
	}
	if strings.TrimSpace(rwd.MarketGrowth) == "" {
		errs = append(errs, errors.New("realWorldData.marketGrowth is required"))
	}
	if rwd.Competitors == nil {
		errs = append(errs, errors.New("realWorldData.competitors is required"))
	}
	for i, c := range rwd.Competitors {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Errorf("realWorldData.competitors[%d].name is required", i))
		}
		if s, ok := c.Similarity.Get(); ok && (s < 0 || s > 100) {
			errs = append(errs, fmt.Errorf("realWorldData.competitors[%d].similarity out of range: %d", i, s))
		}
	}
	if t, ok := rwd.TechnicalFeasibility.Get(); ok && !t.Complexity.Valid() {
		errs = append(errs, fmt.Errorf("realWorldData.technicalFeasibility.complexity invalid: %q", t.Complexity))
	}
	if strings.TrimSpace(rwd.FundingInfo.AverageFunding) == "" || rwd.FundingInfo.TypicalInvestors == nil {
		errs = append(errs, errors.New("realWorldData.fundingInfo requires averageFunding and typicalInvestors"))
	}
	return errors.Join(errs...)
}

// DecodeAnalysis parses a report document. Fractional scores are rounded
// half up; the returned PartialScores shows which axes the document carried.
func DecodeAnalysis(raw []byte) (Analysis, PartialScores, error) {
	var scores PartialScores
	if err := json.Unmarshal(raw, &scores); err != nil {
		return Analysis{}, scores, err
	}
	// The shallower raw fields shadow the integer axes of the embedded report.
	var w struct {
		Analysis
		OverallScore    json.RawMessage `json:"overallScore"`
		MarketPotential json.RawMessage `json:"marketPotential"`
		Feasibility     json.RawMessage `json:"feasibility"`
		Competition     json.RawMessage `json:"competition"`
		RiskLevel       json.RawMessage `json:"riskLevel"`
		InnovationIndex json.RawMessage `json:"innovationIndex"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return Analysis{}, scores, err
	}
	a := w.Analysis
	a.ScoreVector = scores.Vector()
	return a, scores, nil
}
