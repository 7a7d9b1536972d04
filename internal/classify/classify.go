// Package classify assigns categories and relevance scores to signals.
//
// Structured feeds (NOAA, USGS, FIRMS) are relevant by construction and only
// need category mapping. Free-text signals (news items, externally collected
// posts) are scored against a disaster keyword list; anything below the
// configured threshold is dropped by the pipeline before correlation. This is
// the layer that keeps sports scores and celebrity coverage out of the event
// store.
package classify

import (
	"sort"
	"strings"

	"github.com/couchcryptid/disaster-intel/internal/domain"
)

// keywordCategories maps each monitored keyword to its event category.
// Ordering does not matter; the strongest category is picked by match count.
var keywordCategories = map[string]string{
	"earthquake":   domain.CategoryEarthquake,
	"quake":        domain.CategoryEarthquake,
	"aftershock":   domain.CategoryEarthquake,
	"tsunami":      domain.CategoryFlood,
	"flood":        domain.CategoryFlood,
	"flooding":     domain.CategoryFlood,
	"landslide":    domain.CategoryFlood,
	"mudslide":     domain.CategoryFlood,
	"wildfire":     domain.CategoryWildfire,
	"brush fire":   domain.CategoryWildfire,
	"forest fire":  domain.CategoryWildfire,
	"hurricane":    domain.CategoryHurricane,
	"cyclone":      domain.CategoryHurricane,
	"typhoon":      domain.CategoryHurricane,
	"tornado":      domain.CategoryTornado,
	"blizzard":     domain.CategoryWinter,
	"ice storm":    domain.CategoryWinter,
	"storm":        domain.CategoryStorm,
	"thunderstorm": domain.CategoryStorm,
	"drought":      domain.CategoryOther,
	"evacuation":   domain.CategoryOther,
	"emergency":    domain.CategoryOther,
	"disaster":     domain.CategoryOther,
}

// nwsEventCategories maps NWS alert event names (lowercased, substring match)
// onto categories. Checked before the generic keyword scan so "Flood Warning"
// lands on flood rather than other.
var nwsEventCategories = []struct {
	substr   string
	category string
}{
	{"tornado", domain.CategoryTornado},
	{"hurricane", domain.CategoryHurricane},
	{"tropical storm", domain.CategoryHurricane},
	{"flood", domain.CategoryFlood},
	{"fire", domain.CategoryWildfire},
	{"red flag", domain.CategoryWildfire},
	{"winter", domain.CategoryWinter},
	{"blizzard", domain.CategoryWinter},
	{"ice", domain.CategoryWinter},
	{"snow", domain.CategoryWinter},
	{"thunderstorm", domain.CategoryStorm},
	{"wind", domain.CategoryStorm},
	{"storm", domain.CategoryStorm},
}

// Classifier scores signals for disaster relevance.
type Classifier struct {
	threshold float64
}

// New creates a Classifier that treats signals scoring below threshold as
// irrelevant.
func New(threshold float64) *Classifier {
	return &Classifier{threshold: threshold}
}

// Classify fills the signal's Category, Keywords, and Relevance. It returns
// the enriched signal and whether it clears the relevance threshold.
func (c *Classifier) Classify(signal domain.Signal) (domain.Signal, bool) {
	switch signal.Source {
	case domain.SourceUSGS:
		signal.Category = domain.CategoryEarthquake
		signal.Relevance = 1
		return signal, true
	case domain.SourceFIRMS:
		signal.Category = domain.CategoryWildfire
		signal.Relevance = 1
		return signal, true
	case domain.SourceNOAA:
		signal.Category = CategoryForNWSEvent(signal.Title)
		signal.Relevance = 1
		return signal, true
	}

	// Free-text path: news items and externally collected signals.
	keywords, category := scanKeywords(signal.Title, signal.Summary)
	signal.Keywords = keywords
	if signal.Category == "" {
		signal.Category = category
	}
	signal.Relevance = relevance(keywords, signal.Title)
	return signal, signal.Relevance >= c.threshold
}

// CategoryForNWSEvent maps an NWS alert event name to a category.
func CategoryForNWSEvent(event string) string {
	lower := strings.ToLower(event)
	for _, m := range nwsEventCategories {
		if strings.Contains(lower, m.substr) {
			return m.category
		}
	}
	return domain.CategoryOther
}

// scanKeywords returns the matched keywords (sorted, deduplicated) and the
// category with the most matches.
func scanKeywords(title, summary string) ([]string, string) {
	text := strings.ToLower(title + " " + summary)

	var matched []string
	counts := make(map[string]int)
	for keyword, category := range keywordCategories {
		if strings.Contains(text, keyword) {
			matched = append(matched, keyword)
			counts[category]++
		}
	}
	sort.Strings(matched)

	best := domain.CategoryOther
	bestCount := 0
	// Iterate categories in a fixed order so ties resolve deterministically.
	for _, category := range []string{
		domain.CategoryEarthquake, domain.CategoryWildfire, domain.CategoryFlood,
		domain.CategoryTornado, domain.CategoryHurricane, domain.CategoryWinter,
		domain.CategoryStorm, domain.CategoryOther,
	} {
		if counts[category] > bestCount {
			best = category
			bestCount = counts[category]
		}
	}
	return matched, best
}

// relevance scores a free-text signal from its keyword matches. One match is
// weak evidence; matches in the title weigh more than matches buried in the
// summary.
func relevance(keywords []string, title string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	titleLower := strings.ToLower(title)

	score := 0.0
	for _, keyword := range keywords {
		if strings.Contains(titleLower, keyword) {
			score += 0.4
		} else {
			score += 0.2
		}
	}
	if score > 1 {
		return 1
	}
	return score
}
