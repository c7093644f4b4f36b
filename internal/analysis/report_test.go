package analysis

import (
	"strings"
	"testing"
	"time"
)

func TestBuildMarkdownSections(t *testing.T) {
	sub := Submission{StartupName: "Pawsome", Solution: "Mobile app for dog walkers", Problem: "Owners are busy", TargetMarket: "Urban pet owners", Industry: "Technology", Stage: StageIdea}
	snap := MarketSnapshot{
		TotalMarket:       Some(5200.0),
		AddressableMarket: Some(520.0),
		Growth:            Some(13.2),
		Competitors:       []Competitor{{Name: "Rover | Wag", Description: "Pet\nservices", Similarity: Some(72)}},
		News:              []NewsItem{{Title: "Pets boom", Source: "Wire", Date: "2026-01-02"}},
	}
	a := MockAnalysis(sub, snap)
	md := BuildMarkdown(Report{
		ID:         "abc",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Submission: sub,
		Analysis:   a,
		Comparison: Compare(sub, snap, a.Partial()),
	})
	for _, want := range []string{
		"# Startup Validation Report: Pawsome",
		"- Reference: abc",
		"2026-03-01T12:00:00Z",
		"## Scores",
		"## Market Data Alignment",
		"### Strengths",
		"- Total market: $5200B",
		"| Rover \\| Wag | 72% | Pet services |",
		"- Pets boom (Wire, 2026-01-02)",
		"## Roadmap",
		Disclaimer,
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestBuildMarkdownUntitled(t *testing.T) {
	md := BuildMarkdown(Report{Analysis: MockAnalysis(Submission{Solution: "x"}, MarketSnapshot{})})
	if !strings.Contains(md, "Untitled idea") {
		t.Fatal("expected untitled heading")
	}
	if strings.Contains(md, "- Reference:") {
		t.Fatal("reference line should be omitted without an id")
	}
}
