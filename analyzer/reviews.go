package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/ZephyrDeng/market-analyzer-mcp/googleapi"
)

const (
	recentWindow    = 90 * 24 * time.Hour
	trendDelta      = 0.3
	minThemeReviews = 2
	negationReach   = 2
)

const (
	TrendImproving    = "improving"
	TrendDeclining    = "declining"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient data"
)

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

var positiveWords = wordSet(
	"amazing", "attentive", "awesome", "best", "clean", "cozy", "delicious",
	"excellent", "fantastic", "fast", "fresh", "friendly", "good", "great",
	"helpful", "love", "loved", "lovely", "nice", "perfect", "pleasant",
	"professional", "quick", "reasonable", "recommend", "recommended",
	"tasty", "welcoming", "wonderful",
)

var negativeWords = wordSet(
	"avoid", "awful", "bad", "bland", "broken", "cold", "dirty",
	"disappointed", "disappointing", "expensive", "hate", "horrible",
	"mediocre", "noisy", "overpriced", "poor", "rude", "slow", "stale",
	"terrible", "unfriendly", "unprofessional", "worst", "wrong",
)

var negators = wordSet(
	"not", "no", "never", "hardly", "don't", "dont", "didn't", "didnt",
	"isn't", "isnt", "wasn't", "wasnt", "won't", "wont", "can't", "cant",
	"cannot", "nothing",
)

var stopwords = wordSet(
	"about", "after", "again", "all", "also", "and", "any", "are", "because",
	"been", "before", "but", "can", "came", "come", "could", "did", "does",
	"for", "from", "get", "got", "had", "has", "have", "her", "here", "his",
	"how", "into", "its", "it's", "just", "like", "made", "more", "most",
	"much", "our", "out", "over", "place", "really", "she", "some", "than",
	"that", "the", "their", "them", "then", "there", "they", "this", "too",
	"very", "was", "were", "what", "when", "which", "who", "will", "with",
	"would", "you", "your", "i'm", "i've", "we're", "went", "only", "even",
	"one", "two", "time", "back", "ever", "well", "way", "being", "other",
	"off", "again", "where", "while", "such", "own", "same", "should",
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// tokenize lowercases text and splits it into runs of letters, keeping
// inner apostrophes so contractions such as "didn't" stay whole.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '’'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, "’", "'")
		f = strings.Trim(f, "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// SentimentScore counts positive minus negative lexicon hits. A negator in
// the two preceding tokens flips the sign of a hit.
func SentimentScore(text string) int {
	tokens := tokenize(text)
	score := 0
	for i, tok := range tokens {
		var v int
		switch {
		case positiveWords[tok]:
			v = 1
		case negativeWords[tok]:
			v = -1
		default:
			continue
		}
		for j := i - 1; j >= 0 && j >= i-negationReach; j-- {
			if negators[tokens[j]] {
				v = -v
				break
			}
		}
		score += v
	}
	return score
}

// SentimentLabel maps a score onto positive, negative or neutral.
func SentimentLabel(score int) string {
	switch {
	case score > 0:
		return SentimentPositive
	case score < 0:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// ReviewTrend compares recent and older averages. Either side may be nil
// when it has no reviews.
func ReviewTrend(recent, older *float64) string {
	if recent == nil || older == nil {
		return TrendInsufficient
	}
	delta := *recent - *older
	switch {
	case delta >= trendDelta:
		return TrendImproving
	case delta <= -trendDelta:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func extractThemes(reviews []googleapi.Review, topN int) []ThemeStat {
	df := make(map[string]int)
	for _, r := range reviews {
		seen := make(map[string]bool)
		for _, tok := range tokenize(r.Text) {
			if len([]rune(tok)) < 3 || stopwords[tok] || negators[tok] || seen[tok] {
				continue
			}
			seen[tok] = true
			df[tok]++
		}
	}

	themes := make([]ThemeStat, 0, len(df))
	for term, n := range df {
		if n >= minThemeReviews {
			themes = append(themes, ThemeStat{Term: term, Reviews: n})
		}
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Reviews != themes[j].Reviews {
			return themes[i].Reviews > themes[j].Reviews
		}
		return themes[i].Term < themes[j].Term
	})
	if len(themes) > topN {
		themes = themes[:topN]
	}
	return themes
}

// buildReviewResult does all review statistics; rendering happens in AnalyzeReviews.
func buildReviewResult(details *googleapi.PlaceDetails, now time.Time, topN int) ReviewAnalysisResult {
	result := ReviewAnalysisResult{
		AnalysisType:    "reviews",
		PlaceID:         details.PlaceID,
		Name:            details.Name,
		OverallRating:   details.Rating,
		TotalRatings:    details.UserRatingsTotal,
		SampleSize:      len(details.Reviews),
		Distribution:    map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
		SentimentCounts: map[string]int{SentimentPositive: 0, SentimentNeutral: 0, SentimentNegative: 0},
		Themes:          []ThemeStat{},
		Complaints:      []ReviewStat{},
	}

	cutoff := now.Add(-recentWindow).Unix()
	var sum, recentSum, olderSum float64
	var recentN, olderN int
	scored := make([]ReviewStat, 0, len(details.Reviews))
	for _, r := range details.Reviews {
		if r.Rating >= 1 && r.Rating <= 5 {
			result.Distribution[r.Rating]++
		}
		sum += float64(r.Rating)
		if r.Time >= cutoff {
			recentSum += float64(r.Rating)
			recentN++
		} else {
			olderSum += float64(r.Rating)
			olderN++
		}

		s := SentimentScore(r.Text)
		label := SentimentLabel(s)
		result.SentimentCounts[label]++
		scored = append(scored, ReviewStat{
			Author:    r.AuthorName,
			Rating:    r.Rating,
			Time:      r.Time,
			Sentiment: s,
			Label:     label,
			Text:      r.Text,
		})
	}

	if n := len(details.Reviews); n > 0 {
		result.SampleAverage = round2(sum / float64(n))
	}
	if recentN > 0 {
		v := round2(recentSum / float64(recentN))
		result.RecentAverage = &v
	}
	if olderN > 0 {
		v := round2(olderSum / float64(olderN))
		result.OlderAverage = &v
	}
	result.Trend = ReviewTrend(result.RecentAverage, result.OlderAverage)
	result.Themes = extractThemes(details.Reviews, topN)

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Sentiment != scored[j].Sentiment {
			return scored[i].Sentiment < scored[j].Sentiment
		}
		if scored[i].Rating != scored[j].Rating {
			return scored[i].Rating < scored[j].Rating
		}
		return scored[i].Time > scored[j].Time
	})
	for _, s := range scored {
		if len(result.Complaints) >= topN {
			break
		}
		if s.Label == SentimentNegative || s.Rating <= 2 {
			result.Complaints = append(result.Complaints, s)
		}
	}
	return result
}

// AnalyzeReviews summarises the reviews returned for a place: rating mix,
// recent trend, sentiment and recurring themes.
func AnalyzeReviews(details *googleapi.PlaceDetails, now time.Time, topN int, format string) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	if details == nil {
		return "", fmt.Errorf("no place details to analyze")
	}
	if topN <= 0 {
		topN = 5
	}
	logrus.WithFields(logrus.Fields{"place": details.PlaceID, "reviews": len(details.Reviews), "topN": topN, "format": format}).Info("Analyzing reviews")

	result := buildReviewResult(details, now, topN)
	if format == FormatJSON {
		return renderJSON(result, topN), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Review Analysis: %s\n", result.Name))
	b.WriteString(fmt.Sprintf("Overall Rating: %s (%s ratings)\n", FormatRating(result.OverallRating), FormatCount(result.TotalRatings)))
	if result.SampleSize == 0 {
		b.WriteString("Sample: 0 reviews returned, nothing further to analyze.\n")
		return wrapText(format, b.String()), nil
	}
	b.WriteString(fmt.Sprintf("Sample: %d reviews, average %.2f\n", result.SampleSize, result.SampleAverage))
	b.WriteString("--------------------------------------------------\n")

	b.WriteString("Rating Distribution:\n")
	maxCount := 0
	for _, n := range result.Distribution {
		if n > maxCount {
			maxCount = n
		}
	}
	for stars := 5; stars >= 1; stars-- {
		n := result.Distribution[stars]
		bar := ""
		if maxCount > 0 {
			bar = strings.Repeat("#", n*20/maxCount)
		}
		b.WriteString(fmt.Sprintf("  %d★ %-20s %d\n", stars, bar, n))
	}
	b.WriteString("--------------------------------------------------\n")

	b.WriteString(fmt.Sprintf("Trend (last 90 days): %s", result.Trend))
	if result.RecentAverage != nil && result.OlderAverage != nil {
		b.WriteString(fmt.Sprintf(" (recent %.2f vs older %.2f)", *result.RecentAverage, *result.OlderAverage))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Sentiment: positive %d, neutral %d, negative %d\n",
		result.SentimentCounts[SentimentPositive], result.SentimentCounts[SentimentNeutral], result.SentimentCounts[SentimentNegative]))

	if len(result.Themes) > 0 {
		parts := make([]string, 0, len(result.Themes))
		for _, th := range result.Themes {
			parts = append(parts, fmt.Sprintf("%s (%d)", th.Term, th.Reviews))
		}
		b.WriteString("Themes: " + strings.Join(parts, ", ") + "\n")
	} else {
		b.WriteString("Themes: none recurring\n")
	}
	b.WriteString("--------------------------------------------------\n")

	if len(result.Complaints) == 0 {
		b.WriteString("Complaints To Address: none\n")
	} else {
		b.WriteString("Complaints To Address:\n")
		for _, c := range result.Complaints {
			b.WriteString(fmt.Sprintf("  [%d★, %s] %s: \"%s\"\n", c.Rating, FormatAge(c.Time, now), c.Author, truncate(c.Text, 160)))
		}
	}

	return wrapText(format, b.String()), nil
}
