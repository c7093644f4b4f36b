package marketdata

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("The fastest WAY to book local dog walkers with ease, which would help")
	want := []string{"fastest", "book", "local", "walkers", "ease,", "help"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got := ExtractKeywords(strings.Repeat("longword ", 20)); len(got) != 10 {
		t.Fatalf("expected cap of 10, got %d", len(got))
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("mobile scheduling walkers", "walkers scheduling mobile"); got != 1 {
		t.Fatalf("identical word sets should score 1, got %v", got)
	}
	if got := Jaccard("a an the", "to of by"); got != 0 {
		t.Fatalf("short words are ignored, got %v", got)
	}
	if got := similarityPercent("mobile scheduling walkers", "walkers only"); got != 25 {
		t.Fatalf("got %d want 25", got)
	}
}

func TestParseMarketFigure(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"valued at $2.5 trillion", 2500, true},
		{"about 740.4 Billion dollars", 740, true},
		{"a $350 million niche", 0.4, true},
		{"no figures here", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseMarketFigure(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%q: got %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTAMMultiplierOrder(t *testing.T) {
	if got := tamMultiplier("Enterprise SaaS platform"); got != 0.15 {
		t.Fatalf("enterprise should win over saas, got %v", got)
	}
	if got := tamMultiplier("A niche tool"); got != 0.05 {
		t.Fatalf("got %v", got)
	}
	if got := tamMultiplier("A tool"); got != defaultTAMMultiplier {
		t.Fatalf("got %v", got)
	}
}

func TestTechnicalFeasibility(t *testing.T) {
	tf := TechnicalFeasibility("Remote patient monitoring app", "Healthcare")
	if tf.Complexity != analysis.ComplexityMedium {
		t.Fatalf("unexpected complexity %s", tf.Complexity)
	}
	if tf.RequiredResources[len(tf.RequiredResources)-1] != "Medical Advisor" {
		t.Fatalf("expected healthcare resources, got %v", tf.RequiredResources)
	}

	tf = TechnicalFeasibility("Crypto landing page", "Finance")
	if tf.Complexity != analysis.ComplexityHigh {
		t.Fatalf("crypto should outrank landing page, got %s", tf.Complexity)
	}

	tf = TechnicalFeasibility("Handmade candles", "Other")
	if tf.Complexity != analysis.ComplexityMedium ||
		!reflect.DeepEqual(tf.SimilarTechStack, []string{"Standard Web Stack"}) ||
		!reflect.DeepEqual(tf.RequiredResources, []string{"Development Team"}) {
		t.Fatalf("unexpected default profile: %+v", tf)
	}
}

func TestFundingLandscapeUnknownStage(t *testing.T) {
	f := FundingLandscape("", "series-z", fixedNow)
	if f.AverageRaise != "$75K - $750K" {
		t.Fatalf("unknown stage should use idea row, got %s", f.AverageRaise)
	}
	if f.RecentRounds[2].Company != "Other Startup 3" || f.RecentRounds[2].Amount != "$500K" {
		t.Fatalf("unexpected rounds: %+v", f.RecentRounds)
	}
	f.Investors[0] = "mutated"
	if FundingLandscape("", analysis.StageIdea, fixedNow).Investors[0] != "Angel Investors" {
		t.Fatal("returned investors must not alias the table")
	}
}

func TestRelevantTrends(t *testing.T) {
	trends := []string{"Finance apps grow", "Telemedicine adoption accelerated", "Nothing relevant"}
	got := relevantTrends(trends, "Finance", "Remote telemedicine kiosks")
	want := []string{"Finance apps grow", "Telemedicine adoption accelerated"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestMergeCompetitorsSupplementsShortLists(t *testing.T) {
	found := []analysis.Competitor{{Name: "stripe", Similarity: analysis.Some(10)}}
	got := mergeCompetitors(found, "Payment links", "Finance")
	if len(got) != 4 {
		t.Fatalf("expected live entry plus three new fallbacks, got %d: %+v", len(got), got)
	}
	for _, c := range got[1:] {
		if strings.EqualFold(c.Name, "stripe") {
			t.Fatal("fallback duplicated a live competitor")
		}
	}
}

func TestRedactHidesAPIKey(t *testing.T) {
	got := redact("https://newsapi.org/v2/everything?q=x&apiKey=secret")
	if strings.Contains(got, "secret") {
		t.Fatalf("api key leaked: %s", got)
	}
}

func TestTopicNameSplitsOnMatchedPrefix(t *testing.T) {
	cases := []struct {
		text, name, rest string
	}{
		{"Rover - Pet care marketplace", "Rover", "- Pet care marketplace"},
		{"The Café Collective - Ordering for cafés", "Café Collective", "- Ordering for cafés"},
		{"An Über Platform: rides", "Über Platform", ": rides"},
		{"-ééééééééééééééééééééééééééééééééééééééééééé tail", "-ééééééééééééééééééééééééééééééééééééééé", "éééé tail"},
	}
	for _, tc := range cases {
		name, rest := topicName(tc.text)
		if name != tc.name || rest != tc.rest {
			t.Fatalf("topicName(%q) = %q, %q; want %q, %q", tc.text, name, rest, tc.name, tc.rest)
		}
		if !utf8.ValidString(rest) {
			t.Fatalf("rest split a rune: %q", rest)
		}
	}
}
