package wiki

import (
	"fmt"
	"strings"
)

const (
	defaultLocale          = "en"
	defaultHistoryPageSize = 10
	defaultSearchLimit     = 5
	defaultTrendingLimit   = 5
)

// Feature names one user-facing capability that configuration can disable.
type Feature string

const (
	// FeatureRandom serves /randomwiki and the "another random" button.
	FeatureRandom Feature = "random"
	// FeatureSearch serves /search.
	FeatureSearch Feature = "search"
	// FeatureLocale serves /setlang and the language buttons.
	FeatureLocale Feature = "locale"
	// FeatureFeatured serves /today.
	FeatureFeatured Feature = "featured"
	// FeatureHistory serves /history.
	FeatureHistory Feature = "history"
	// FeatureShare serves /share, /shared and share deep links.
	FeatureShare Feature = "share"
	// FeatureTrending serves /trending.
	FeatureTrending Feature = "trending"
	// FeatureInline serves inline queries.
	FeatureInline Feature = "inline"
)

var knownFeatures = []Feature{
	FeatureRandom,
	FeatureSearch,
	FeatureLocale,
	FeatureFeatured,
	FeatureHistory,
	FeatureShare,
	FeatureTrending,
	FeatureInline,
}

// Config configures wiki module behavior.
type Config struct {
	// DefaultLocale is used when an owner has no selection and their client
	// language is unsupported.
	DefaultLocale string
	// HistoryPageSize bounds how many entries /history shows.
	HistoryPageSize int
	// SearchLimit bounds search results per query.
	SearchLimit int
	// TrendingLimit bounds the most-read ranking length.
	TrendingLimit int
	// DisabledFeatures lists features whose commands are not registered.
	DisabledFeatures []string
}

// normalize fills defaults and validates the configuration.
func (c Config) normalize() (Config, error) {
	c.DefaultLocale = strings.ToLower(strings.TrimSpace(c.DefaultLocale))
	if c.DefaultLocale == "" {
		c.DefaultLocale = defaultLocale
	}
	if _, ok := languageName(c.DefaultLocale); !ok {
		return Config{}, fmt.Errorf("wiki config: unsupported default locale %q", c.DefaultLocale)
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = defaultHistoryPageSize
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = defaultSearchLimit
	}
	if c.TrendingLimit <= 0 {
		c.TrendingLimit = defaultTrendingLimit
	}

	disabled := make([]string, 0, len(c.DisabledFeatures))
	for _, raw := range c.DisabledFeatures {
		feature := Feature(strings.ToLower(strings.TrimSpace(raw)))
		if feature == "" {
			continue
		}
		if !isKnownFeature(feature) {
			return Config{}, fmt.Errorf("wiki config: unknown feature %q", raw)
		}
		disabled = append(disabled, string(feature))
	}
	c.DisabledFeatures = disabled

	return c, nil
}

func (c Config) enabledFeatures() map[Feature]bool {
	enabled := make(map[Feature]bool, len(knownFeatures))
	for _, feature := range knownFeatures {
		enabled[feature] = true
	}
	for _, feature := range c.DisabledFeatures {
		enabled[Feature(feature)] = false
	}

	return enabled
}

func isKnownFeature(feature Feature) bool {
	for _, known := range knownFeatures {
		if known == feature {
			return true
		}
	}

	return false
}
