package analyzer

// --- JSON output structures ---

// ErrorResult is returned in JSON output when a result cannot be rendered.
type ErrorResult struct {
	Error string `json:"error"`
	TopN  int    `json:"topN,omitempty"`
}

// CompetitorStat describes one competitor (or the target) in a competitor analysis.
type CompetitorStat struct {
	Rank           int     `json:"rank"`
	PlaceID        string  `json:"placeId"`
	Name           string  `json:"name"`
	Address        string  `json:"address,omitempty"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"reviewCount"`
	BayesianRating float64 `json:"bayesianRating"`
	Strength       float64 `json:"strength"`  // 0..100
	DistanceMeters float64 `json:"distanceMeters"`
	DistanceBand   string  `json:"distanceBand"`
	Direction      string  `json:"direction"` // compass point from the origin
	PriceLevel     *int    `json:"priceLevel,omitempty"`
	IsTarget       bool    `json:"isTarget,omitempty"`
}

// TargetPosition is where the analysed business sits among its competitors.
type TargetPosition struct {
	CompetitorStat
	RankOf            int     `json:"rankOf"`
	RatingPercentile  float64 `json:"ratingPercentile"`  // % of competitors rated strictly lower
	ReviewsPercentile float64 `json:"reviewsPercentile"` // % of competitors with strictly fewer reviews
}

// CompetitorSummary aggregates the whole competitor set.
type CompetitorSummary struct {
	CompetitorCount   int             `json:"competitorCount"`
	ExcludedClosed    int             `json:"excludedClosed"`
	RadiusMeters      int             `json:"radiusMeters"`
	DensityPerSqKm    float64         `json:"densityPerSqKm"`
	MeanRating        float64         `json:"meanRating"`
	MedianReviewCount float64         `json:"medianReviewCount"`
	ByDistanceBand    map[string]int  `json:"byDistanceBand"`
	ByDirection       map[string]int  `json:"byDirection"`
	Nearest           *CompetitorStat `json:"nearest,omitempty"`
}

// CompetitorAnalysisResult is the JSON form of a competitor analysis.
type CompetitorAnalysisResult struct {
	AnalysisType string            `json:"analysisType"`
	OriginLat    float64           `json:"originLat"`
	OriginLng    float64           `json:"originLng"`
	Summary      CompetitorSummary `json:"summary"`
	Target       *TargetPosition   `json:"target,omitempty"`
	TopN         int               `json:"topN"`
	Competitors  []CompetitorStat  `json:"competitors"`
}

// ReviewStat is a single scored review.
type ReviewStat struct {
	Author    string `json:"author"`
	Rating    int    `json:"rating"`
	Time      int64  `json:"time"`
	Sentiment int    `json:"sentiment"`
	Label     string `json:"label"`
	Text      string `json:"text"`
}

// ThemeStat counts how many reviews mention a term.
type ThemeStat struct {
	Term    string `json:"term"`
	Reviews int    `json:"reviews"`
}

// ReviewAnalysisResult is the JSON form of a review analysis.
type ReviewAnalysisResult struct {
	AnalysisType    string         `json:"analysisType"`
	PlaceID         string         `json:"placeId"`
	Name            string         `json:"name"`
	OverallRating   float64        `json:"overallRating"`
	TotalRatings    int            `json:"totalRatings"`
	SampleSize      int            `json:"sampleSize"`
	SampleAverage   float64        `json:"sampleAverage"`
	Distribution    map[int]int    `json:"distribution"`
	RecentAverage   *float64       `json:"recentAverage,omitempty"`
	OlderAverage    *float64       `json:"olderAverage,omitempty"`
	Trend           string         `json:"trend"`
	SentimentCounts map[string]int `json:"sentimentCounts"`
	Themes          []ThemeStat    `json:"themes"`
	Complaints      []ReviewStat   `json:"complaints"`
}

// ScoreStat is a 0..100 Lighthouse category score; Score is nil when unavailable.
type ScoreStat struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Score  *int   `json:"score"`
	Rating string `json:"rating"`
}

// MetricStat is a lab or field metric with its rating.
type MetricStat struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Value        float64 `json:"value"`
	DisplayValue string  `json:"displayValue"`
	Category     string  `json:"category,omitempty"`
	Rating       string  `json:"rating"`
}

// OpportunityStat is an improvement suggestion with estimated savings.
type OpportunityStat struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	SavingsMs float64 `json:"savingsMs"`
	Display   string  `json:"displayValue,omitempty"`
}

// PageSpeedAnalysisResult is the JSON form of a PageSpeed analysis.
type PageSpeedAnalysisResult struct {
	AnalysisType      string            `json:"analysisType"`
	URL               string            `json:"url"`
	Strategy          string            `json:"strategy,omitempty"`
	LighthouseVersion string            `json:"lighthouseVersion,omitempty"`
	Categories        []ScoreStat       `json:"categories"`
	LabMetrics        []MetricStat      `json:"labMetrics"`
	FieldCategory     string            `json:"fieldCategory,omitempty"`
	FieldMetrics      []MetricStat      `json:"fieldMetrics,omitempty"`
	TopN              int               `json:"topN"`
	Opportunities     []OpportunityStat `json:"opportunities"`
}

// BenchmarkRow is one site in a PageSpeed benchmark.
type BenchmarkRow struct {
	Rank   int             `json:"rank,omitempty"`
	URL    string          `json:"url"`
	Scores map[string]*int `json:"scores,omitempty"`
	LCPMs  *float64        `json:"lcpMs,omitempty"`
	CLS    *float64        `json:"cls,omitempty"`
	TBTMs  *float64        `json:"tbtMs,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BenchmarkResult is the JSON form of a PageSpeed benchmark.
type BenchmarkResult struct {
	AnalysisType string         `json:"analysisType"`
	Sites        []BenchmarkRow `json:"sites"`
}
