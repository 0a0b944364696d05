package entity

import (
	"fmt"
	"time"
)

// ScoreType names a numeric profile score usable in cohort ranges
type ScoreType string

const (
	ScoreActivity   ScoreType = "activity_score"
	ScoreEngagement ScoreType = "engagement_score"
	ScoreLoyalty    ScoreType = "loyalty_score"
	ScoreViral      ScoreType = "viral_potential"
	ScoreInfluence  ScoreType = "influence_score"
)

// AllScoreTypes lists score types in reporting order
var AllScoreTypes = []ScoreType{ScoreActivity, ScoreEngagement, ScoreLoyalty, ScoreViral, ScoreInfluence}

// IsValid reports whether the score type is known
func (t ScoreType) IsValid() bool {
	for _, st := range AllScoreTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Score reads the named score from a profile
func (p *AddressProfile) Score(t ScoreType) (int, bool) {
	switch t {
	case ScoreActivity:
		return p.ActivityScore, true
	case ScoreEngagement:
		return p.EngagementScore, true
	case ScoreLoyalty:
		return p.LoyaltyScore, true
	case ScoreViral:
		return p.ViralPotential, true
	case ScoreInfluence:
		return p.InfluenceScore, true
	}
	return 0, false
}

// PortfolioSize buckets the summed average transaction value
type PortfolioSize string

const (
	PortfolioWhale  PortfolioSize = "whale"
	PortfolioLarge  PortfolioSize = "large"
	PortfolioMedium PortfolioSize = "medium"
	PortfolioSmall  PortfolioSize = "small"
)

// TradingFrequency is the cohort view of a profile's dominant pattern
type TradingFrequency string

const (
	TradingVeryHigh TradingFrequency = "very_high"
	TradingHigh     TradingFrequency = "high"
	TradingMedium   TradingFrequency = "medium"
	TradingLow      TradingFrequency = "low"
	TradingUnknown  TradingFrequency = "unknown"
)

// RiskTolerance is derived from transaction volatility
type RiskTolerance string

const (
	ToleranceAggressive   RiskTolerance = "aggressive"
	ToleranceModerate     RiskTolerance = "moderate"
	ToleranceConservative RiskTolerance = "conservative"
)

// ActivityLevel buckets activity for cohort reporting
type ActivityLevel string

const (
	ActivityHigh     ActivityLevel = "high"
	ActivityMedium   ActivityLevel = "medium"
	ActivityLow      ActivityLevel = "low"
	ActivityInactive ActivityLevel = "inactive"
)

// ScoreRange bounds a score inclusively; nil means unbounded
type ScoreRange struct {
	Min *int `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int `json:"max,omitempty" yaml:"max,omitempty"`
}

// Contains reports whether v lies inside the range
func (r ScoreRange) Contains(v int) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// DateRange restricts profiles by first-seen and last-analyzed timestamps.
// Bounds are inclusive, like ScoreRange.
type DateRange struct {
	CreatedAfter      *time.Time `json:"created_after,omitempty" yaml:"created_after,omitempty"`
	CreatedBefore     *time.Time `json:"created_before,omitempty" yaml:"created_before,omitempty"`
	LastAnalyzedAfter *time.Time `json:"last_analyzed_after,omitempty" yaml:"last_analyzed_after,omitempty"`
	// CreatedWithinDays is resolved against the analysis time
	CreatedWithinDays int        `json:"created_within_days,omitempty" yaml:"created_within_days,omitempty"`
}

// GroupAnalysisFilter is a declarative cohort query. Dimensions are ANDed,
// values inside a list are ORed.
type GroupAnalysisFilter struct {
	RiskLevels         []RiskLevel              `json:"risk_levels,omitempty" yaml:"risk_levels,omitempty"`
	MarketingSegments  []string                 `json:"marketing_segments,omitempty" yaml:"marketing_segments,omitempty"`
	SourcePlatforms    []DataSource             `json:"source_platforms,omitempty" yaml:"source_platforms,omitempty"`
	PortfolioSizes     []PortfolioSize          `json:"portfolio_sizes,omitempty" yaml:"portfolio_sizes,omitempty"`
	TradingFrequencies []TradingFrequency       `json:"trading_frequencies,omitempty" yaml:"trading_frequencies,omitempty"`
	ScoringRanges      map[ScoreType]ScoreRange `json:"scoring_ranges,omitempty" yaml:"scoring_ranges,omitempty"`
	DateRanges         *DateRange               `json:"date_ranges,omitempty" yaml:"date_ranges,omitempty"`
}

// Validate rejects unknown score types and inverted ranges
func (f *GroupAnalysisFilter) Validate() error {
	for st, r := range f.ScoringRanges {
		if !st.IsValid() {
			return fmt.Errorf("%w: unknown score type %q", ErrInvalidFilter, st)
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("%w: %s min %d exceeds max %d", ErrInvalidFilter, st, *r.Min, *r.Max)
		}
	}
	if d := f.DateRanges; d != nil {
		if d.CreatedAfter != nil && d.CreatedBefore != nil && d.CreatedAfter.After(*d.CreatedBefore) {
			return fmt.Errorf("%w: created_after is later than created_before", ErrInvalidFilter)
		}
		if d.CreatedWithinDays < 0 {
			return fmt.Errorf("%w: negative created_within_days", ErrInvalidFilter)
		}
	}
	return nil
}

// FilterTemplate is a named cohort preset
type FilterTemplate struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description" yaml:"description"`
	Filter      GroupAnalysisFilter `json:"filter" yaml:"filter"`
}

// Demographics summarises score averages and categorical distributions
type Demographics struct {
	AverageScores         map[ScoreType]int `json:"average_scores"`
	RiskLevels            map[string]int    `json:"risk_levels"`
	MarketingSegments     map[string]int    `json:"marketing_segments"`
	SourcePlatforms       map[string]int    `json:"source_platforms"`
	PortfolioSizes        map[string]int    `json:"portfolio_sizes"`
	RiskProfile           string            `json:"risk_profile"`
	MarketingSegmentation map[string]int    `json:"marketing_segmentation"`
}

// Behavioral summarises trading behaviour across a cohort
type Behavioral struct {
	TradingPatterns      []string                  `json:"trading_patterns"`
	TradingFrequency     map[string]int            `json:"trading_frequency"`
	RiskTolerance        map[string]int            `json:"risk_tolerance"`
	ActivityLevels       map[string]int            `json:"activity_levels"`
	PortfolioComposition map[PortfolioSize]float64 `json:"portfolio_composition"` // percent
}

// Strategic holds recommendations derived from demographics and behaviour
type Strategic struct {
	MarketingRecommendations []string `json:"marketing_recommendations"`
	TargetingStrategy        string   `json:"targeting_strategy"`
	RiskMitigation           []string `json:"risk_mitigation"`
	Opportunities            []string `json:"opportunities"`
}

// Comparative compares a cohort against the whole population
type Comparative struct {
	VsAverage             map[ScoreType]string `json:"vs_average"`
	MarketPosition        string               `json:"market_position"`
	CompetitiveAdvantages []string             `json:"competitive_advantages"`
}

// Narrative is the LLM-written (or templated) cohort summary
type Narrative struct {
	Summary            string   `json:"summary"`
	KeyFindings        []string `json:"keyFindings"`
	ActionableInsights []string `json:"actionableInsights"`
	RiskAssessment     string   `json:"riskAssessment"`
	MarketingStrategy  string   `json:"marketingStrategy"`
	Fallback           bool     `json:"fallback"`
}

// GroupAnalysisResult is produced per request and not persisted
type GroupAnalysisResult struct {
	ID           string              `json:"id"`
	AnalysisName string              `json:"analysis_name"`
	WalletCount  int                 `json:"wallet_count"`
	Filter       GroupAnalysisFilter `json:"filter_criteria"`
	Demographics Demographics        `json:"demographics"`
	Behavioral   Behavioral          `json:"behavioral"`
	Strategic    Strategic           `json:"strategic"`
	Comparative  Comparative         `json:"comparative"`
	Narrative    Narrative           `json:"ai_analysis"`
	Confidence   float64             `json:"confidence"`
	GeneratedAt  time.Time           `json:"generated_at"`
	RequestedBy  string              `json:"requested_by,omitempty"`
}

// CohortPreview is a cheap look at what a filter would match
type CohortPreview struct {
	MatchCount      int      `json:"match_count"`
	SampleAddresses []string `json:"sample_addresses"`
}
