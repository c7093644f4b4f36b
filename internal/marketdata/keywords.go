package marketdata

import (
	"math"
	"strings"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by
		is are was were be been being have has had do does did
		will would could should may might must can this that these
		those i you he she it we they what which who when where
		why how all each every both few more most other some such`) {
		stopWords[w] = struct{}{}
	}
}

const maxKeywords = 10

// ExtractKeywords lower-cases text and keeps up to ten words longer than
// three characters that are not stop words, in order of appearance.
func ExtractKeywords(text string) []string {
	out := []string{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(out) == maxKeywords {
			break
		}
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func longWords(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) > 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

// Jaccard returns the overlap of the long words of a and b in [0,1].
func Jaccard(a, b string) float64 {
	wa, wb := longWords(a), longWords(b)
	union := len(wa)
	inter := 0
	for w := range wb {
		if _, ok := wa[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// similarityPercent is Jaccard scaled to a 0-100 integer.
func similarityPercent(a, b string) int {
	return int(math.Floor(Jaccard(a, b)*100 + 0.5))
}
