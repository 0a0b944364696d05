package entity

// IntelligenceReport summarises the whole profile population
type IntelligenceReport struct {
	TotalAddresses    int               `json:"total_addresses"`
	AverageEngagement float64           `json:"average_engagement"`
	TierDistribution  map[ValueTier]int `json:"tier_distribution"`
	RiskDistribution  map[RiskLevel]int `json:"risk_distribution"`
	TopPerformers     []*AddressProfile `json:"top_performers"`
	Insights          []string          `json:"insights"`

	MarketingOpportunities []string `json:"marketing_opportunities,omitempty"`
}

// CampaignMessage is one optimised send in a campaign plan
type CampaignMessage struct {
	Address             string  `json:"address"`
	PersonalizedContent string  `json:"personalized_content"`
	OptimalSendTime     string  `json:"optimal_send_time"`
	ExpectedEngagement  int     `json:"expected_engagement"`
	RecommendedChannel  Channel `json:"recommended_channel"`
}

// CampaignInsights aggregates a campaign plan
type CampaignInsights struct {
	TotalReach       int `json:"total_reach"`
	ExpectedResponse int `json:"expected_response"`
	HighValueTargets int `json:"high_value_targets"`
	RiskAddresses    int `json:"risk_addresses"`
}

// CampaignPlan is the output of campaign optimisation
type CampaignPlan struct {
	Messages []CampaignMessage `json:"optimized_messages"`
	Insights CampaignInsights  `json:"campaign_insights"`
}

// AddressAnalysis pairs a profile with recommendations
type AddressAnalysis struct {
	Address         string          `json:"address"`
	Profile         *AddressProfile `json:"intelligence"`
	Recommendations []string        `json:"recommendations"`
}
