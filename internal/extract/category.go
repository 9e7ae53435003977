package extract

import (
	"strings"
	"unicode"
)

const (
	CategoryMusic     = "Music"
	CategorySports    = "Sports"
	CategoryArts      = "Arts & Theatre"
	CategoryComedy    = "Comedy"
	CategoryFood      = "Food & Drink"
	CategoryBusiness  = "Business"
	CategoryTech      = "Technology"
	CategoryFamily    = "Family"
	CategoryFilm      = "Film"
	CategoryFestival  = "Festivals"
	CategoryNightlife = "Nightlife"
	CategoryHealth    = "Health & Wellness"
	CategoryCommunity = "Community"
	CategoryEducation = "Education"
	// CategoryDefault is used when nothing matches.
	CategoryDefault = "Event"
)

// categoryKeywords is checked in order; the first category with a matching
// keyword wins, so more specific categories come first.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryComedy, []string{"comedy", "stand-up", "standup", "improv", "comedian"}},
	{CategoryFestival, []string{"festival", "fest", "fair", "carnival"}},
	{CategoryMusic, []string{"music", "concert", "band", "jazz", "rock", "hip-hop", "hip hop", "dj", "orchestra", "symphony", "live music", "gig", "tour"}},
	{CategorySports, []string{"sport", "sports", "football", "soccer", "basketball", "baseball", "hockey", "tennis", "golf", "marathon", "race", "match", "nba", "nfl", "mlb", "nhl", "ufc", "boxing"}},
	{CategoryArts, []string{"theatre", "theater", "arts", "art", "ballet", "opera", "musical", "dance", "gallery", "exhibition", "museum", "performing-arts"}},
	{CategoryFilm, []string{"film", "movie", "cinema", "screening"}},
	{CategoryFood, []string{"food", "drink", "wine", "beer", "tasting", "culinary", "brunch", "dinner", "cocktail"}},
	{CategoryTech, []string{"tech", "hackathon", "developer", "coding", "software", "startup", "ai", "science-and-technology"}},
	{CategoryBusiness, []string{"business", "networking", "conference", "summit", "expo", "professional", "career"}},
	{CategoryHealth, []string{"yoga", "fitness", "wellness", "health", "meditation", "run club"}},
	{CategoryFamily, []string{"family", "kids", "children", "family-and-education"}},
	{CategoryEducation, []string{"workshop", "class", "lecture", "seminar", "academic", "course"}},
	{CategoryNightlife, []string{"nightlife", "club", "party", "nightclub"}},
	{CategoryCommunity, []string{"community", "charity", "volunteer", "meetup", "public-holidays", "observances"}},
}

// Category maps free-form provider labels (segments, genres, tags, titles)
// to one of our categories. Labels are tried in order and matched on whole
// words, so "musical" is theatre and "husband" is not a band.
func Category(labels ...string) string {
	for _, l := range labels {
		s := normalizeWords(l)
		if strings.TrimSpace(s) == "" {
			continue
		}
		for _, ck := range categoryKeywords {
			for _, kw := range ck.keywords {
				if containsWord(s, normalizeWords(kw)) {
					return ck.category
				}
			}
		}
	}
	return CategoryDefault
}

// normalizeWords lowercases s, turns punctuation into spaces and pads it so
// whole-word checks are plain substring checks.
func normalizeWords(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsWord(padded, kw string) bool {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return false
	}
	return strings.Contains(padded, " "+kw+" ") || strings.Contains(padded, " "+kw+"s ")
}

var defaultImages = map[string]string{
	CategoryMusic:     "https://images.unsplash.com/photo-1501386761578-eac5c94b800a?w=800&h=600&fit=crop",
	CategorySports:    "https://images.unsplash.com/photo-1461896836934-ffe607ba8211?w=800&h=600&fit=crop",
	CategoryArts:      "https://images.unsplash.com/photo-1507676184212-d03ab07a01bf?w=800&h=600&fit=crop",
	CategoryComedy:    "https://images.unsplash.com/photo-1585699324551-f6c309eedeca?w=800&h=600&fit=crop",
	CategoryFood:      "https://images.unsplash.com/photo-1414235077428-338989a2e8c0?w=800&h=600&fit=crop",
	CategoryBusiness:  "https://images.unsplash.com/photo-1540575467063-178a50c2df87?w=800&h=600&fit=crop",
	CategoryTech:      "https://images.unsplash.com/photo-1504384308090-c894fdcc538d?w=800&h=600&fit=crop",
	CategoryFamily:    "https://images.unsplash.com/photo-1511895426328-dc8714191300?w=800&h=600&fit=crop",
	CategoryFilm:      "https://images.unsplash.com/photo-1489599849927-2ee91cede3ba?w=800&h=600&fit=crop",
	CategoryFestival:  "https://images.unsplash.com/photo-1533174072545-7a4b6ad7a6c3?w=800&h=600&fit=crop",
	CategoryNightlife: "https://images.unsplash.com/photo-1566737236500-c8ac43014a67?w=800&h=600&fit=crop",
	CategoryHealth:    "https://images.unsplash.com/photo-1544367567-0f2fcb009e0b?w=800&h=600&fit=crop",
	CategoryCommunity: "https://images.unsplash.com/photo-1529156069898-49953e39b3ac?w=800&h=600&fit=crop",
	CategoryEducation: "https://images.unsplash.com/photo-1524178232363-1fb2b075b655?w=800&h=600&fit=crop",
	CategoryDefault:   "https://images.unsplash.com/photo-1492684223066-81342ee5ff30?w=800&h=600&fit=crop",
}

// DefaultImage is the fallback picture for a category.
func DefaultImage(category string) string {
	if img, ok := defaultImages[category]; ok {
		return img
	}
	return defaultImages[CategoryDefault]
}

// IsFallbackImage reports whether img is one of the category defaults.
func IsFallbackImage(img string) bool {
	for _, v := range defaultImages {
		if v == img {
			return true
		}
	}
	return false
}
