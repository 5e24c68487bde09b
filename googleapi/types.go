package googleapi

// --- Places Web Service ---

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Geometry struct {
	Location LatLng `json:"location"`
}

// Place is one result of a nearby or text search.
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Geometry         Geometry `json:"geometry"`
	Rating           float64  `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	PriceLevel       *int     `json:"price_level,omitempty"`
	BusinessStatus   string   `json:"business_status,omitempty"`
	Types            []string `json:"types,omitempty"`
}

// NearbySearchResponse is the raw nearbysearch/textsearch payload. It is
// also the on-disk snapshot format.
type NearbySearchResponse struct {
	Results          []Place  `json:"results"`
	Status           string   `json:"status"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	NextPageToken    string   `json:"next_page_token,omitempty"`
	HTMLAttributions []string `json:"html_attributions,omitempty"`
}

type NearbySearchRequest struct {
	Location     LatLng
	RadiusMeters int
	Keyword      string
	Type         string
	// MaxPages caps next_page_token follow-ups (1..3).
	MaxPages int
}

type Review struct {
	AuthorName              string `json:"author_name"`
	Rating                  int    `json:"rating"`
	Text                    string `json:"text"`
	Time                    int64  `json:"time"`
	RelativeTimeDescription string `json:"relative_time_description,omitempty"`
	Language                string `json:"language,omitempty"`
}

type PlaceDetails struct {
	PlaceID              string   `json:"place_id"`
	Name                 string   `json:"name"`
	FormattedAddress     string   `json:"formatted_address,omitempty"`
	FormattedPhoneNumber string   `json:"formatted_phone_number,omitempty"`
	Website              string   `json:"website,omitempty"`
	URL                  string   `json:"url,omitempty"`
	Geometry             Geometry `json:"geometry"`
	Rating               float64  `json:"rating,omitempty"`
	UserRatingsTotal     int      `json:"user_ratings_total,omitempty"`
	PriceLevel           *int     `json:"price_level,omitempty"`
	BusinessStatus       string   `json:"business_status,omitempty"`
	Types                []string `json:"types,omitempty"`
	Reviews              []Review `json:"reviews,omitempty"`
}

type PlaceDetailsResponse struct {
	Result       PlaceDetails `json:"result"`
	Status       string       `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

type DetailsOptions struct {
	// ReviewsSort is "most_relevant" (default) or "newest".
	ReviewsSort string
	Language    string
}

// --- PageSpeed Insights v5 ---

type PageSpeedRequest struct {
	URL        string
	Strategy   string
	Categories []string
	Locale     string
}

type PageSpeedResult struct {
	ID                string             `json:"id"`
	AnalysisUTC       string             `json:"analysisUTCTimestamp,omitempty"`
	LoadingExperience *LoadingExperience `json:"loadingExperience,omitempty"`
	OriginLoading     *LoadingExperience `json:"originLoadingExperience,omitempty"`
	LighthouseResult  LighthouseResult   `json:"lighthouseResult"`
}

type LoadingExperience struct {
	ID              string                 `json:"id,omitempty"`
	OverallCategory string                 `json:"overall_category,omitempty"`
	Metrics         map[string]FieldMetric `json:"metrics,omitempty"`
}

type FieldMetric struct {
	Percentile float64 `json:"percentile"`
	Category   string  `json:"category"`
}

type LighthouseResult struct {
	RequestedURL      string                        `json:"requestedUrl"`
	FinalURL          string                        `json:"finalUrl"`
	LighthouseVersion string                        `json:"lighthouseVersion"`
	FetchTime         string                        `json:"fetchTime"`
	ConfigSettings    ConfigSettings                `json:"configSettings"`
	Categories        map[string]LighthouseCategory `json:"categories"`
	Audits            map[string]LighthouseAudit    `json:"audits"`
	RuntimeError      *RuntimeError                 `json:"runtimeError,omitempty"`
}

type ConfigSettings struct {
	EmulatedFormFactor string `json:"emulatedFormFactor,omitempty"`
	FormFactor         string `json:"formFactor,omitempty"`
	Locale             string `json:"locale,omitempty"`
}

type LighthouseCategory struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Score *float64 `json:"score"`
}

type LighthouseAudit struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	Score            *float64      `json:"score"`
	ScoreDisplayMode string        `json:"scoreDisplayMode,omitempty"`
	DisplayValue     string        `json:"displayValue,omitempty"`
	NumericValue     *float64      `json:"numericValue,omitempty"`
	NumericUnit      string        `json:"numericUnit,omitempty"`
	Details          *AuditDetails `json:"details,omitempty"`
}

type AuditDetails struct {
	Type             string  `json:"type"`
	OverallSavingsMs float64 `json:"overallSavingsMs,omitempty"`
	OverallSavingsB  float64 `json:"overallSavingsBytes,omitempty"`
}

type RuntimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PageSpeedOutcome is one entry of a benchmark: either Result or Err is set.
type PageSpeedOutcome struct {
	URL    string
	Result *PageSpeedResult
	Err    error
}
