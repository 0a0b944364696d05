package entity

import (
	"slices"
	"time"
)

// Channel is the medium a communication event travelled over
type Channel string

const (
	ChannelSMS        Channel = "sms"
	ChannelEmail      Channel = "email"
	ChannelBlockchain Channel = "blockchain"
	ChannelApp        Channel = "app"
)

// IsValid reports whether the channel is one of the known values
func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelBlockchain, ChannelApp:
		return true
	}
	return false
}

// Direction of a communication event relative to the platform
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// IsValid reports whether the direction is one of the known values
func (d Direction) IsValid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// EngagementLevel describes how far a recipient engaged with a message
type EngagementLevel string

const (
	EngagementNone      EngagementLevel = "none"
	EngagementViewed    EngagementLevel = "viewed"
	EngagementClicked   EngagementLevel = "clicked"
	EngagementResponded EngagementLevel = "responded"
)

// IsValid reports whether the level is one of the known values
func (e EngagementLevel) IsValid() bool {
	switch e {
	case EngagementNone, EngagementViewed, EngagementClicked, EngagementResponded:
		return true
	}
	return false
}

// Sentiment of a message body
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// RiskLevel is the churn/engagement risk bucket of a profile
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
	// RiskCritical is accepted in cohort filters but never assigned by scoring
	RiskCritical RiskLevel = "critical"
)

// ValueTier is the coarse worth classification of an address
type ValueTier string

const (
	TierBronze  ValueTier = "bronze"
	TierSilver  ValueTier = "silver"
	TierGold    ValueTier = "gold"
	TierDiamond ValueTier = "diamond"
)

// AllValueTiers lists tiers from lowest to highest
var AllValueTiers = []ValueTier{TierBronze, TierSilver, TierGold, TierDiamond}

// DataSource names the platform a profile was first captured from
type DataSource string

const (
	DataSourceFlutterbye DataSource = "flutterbye"
	DataSourcePoolPal    DataSource = "pool_pal"
)

// Frequency bucket of a transaction pattern
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyIrregular Frequency = "irregular"
)

// Customer segments assigned by capture paths
const (
	SegmentNew       = "new"
	SegmentPoolOwner = "pool_owner"
)

// CommunicationEvent is an immutable record of one message exchange
type CommunicationEvent struct {
	Timestamp    time.Time       `json:"timestamp"`
	Channel      Channel         `json:"channel"`
	Direction    Direction       `json:"direction"`
	MessageType  string          `json:"message_type"`
	ResponseTime *float64        `json:"response_time,omitempty"` // seconds
	Engagement   EngagementLevel `json:"engagement"`
	Sentiment    Sentiment       `json:"sentiment"`
}

// TransactionPattern is a derived summary of an address's transactions
type TransactionPattern struct {
	Frequency        Frequency `json:"frequency"`
	AverageValue     float64   `json:"average_value"`
	PreferredTimes   []string  `json:"preferred_times"`
	TransactionTypes []string  `json:"transaction_types"`
	Volatility       float64   `json:"volatility"`
}

// TransactionData is a raw transaction supplied by an external collaborator
type TransactionData struct {
	Hash      string    `json:"hash"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// BusinessContext carries customer data captured by the Pool Pal integration
type BusinessContext struct {
	PoolType         string            `json:"pool_type"`
	ServiceFrequency string            `json:"service_frequency"`
	BudgetRange      string            `json:"budget_range"`
	Location         string            `json:"location"`
	Preferences      map[string]string `json:"communication_preferences,omitempty"`
}

// AddressProfile is the accumulated intelligence record for one address
type AddressProfile struct {
	Address   string    `json:"address"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	ActivityScore   int `json:"activity_score"`
	EngagementScore int `json:"engagement_score"`
	LoyaltyScore    int `json:"loyalty_score"`
	ViralPotential  int `json:"viral_potential"`
	InfluenceScore  int `json:"influence_score"`

	RiskAssessment RiskLevel `json:"risk_assessment"`
	ValueTier      ValueTier `json:"value_tier"`
	ChurnRisk      float64   `json:"churn_risk"`

	CommunicationHistory []CommunicationEvent `json:"communication_history"`
	TransactionPatterns  []TransactionPattern `json:"transaction_patterns"`
	NetworkConnections   []string             `json:"network_connections"`

	PreferredChannels   []Channel        `json:"preferred_channels"`
	OptimalContactTimes []string         `json:"optimal_contact_times"`
	BusinessContext     *BusinessContext `json:"business_context,omitempty"`

	CustomerSegment string     `json:"customer_segment"`
	DataSource      DataSource `json:"data_source"`
	ConfidenceLevel float64    `json:"confidence_level"`
	LastAnalyzed    time.Time  `json:"last_analyzed"`
}

// NewAddressProfile creates a profile with first-sight defaults
func NewAddressProfile(address string, now time.Time) *AddressProfile {
	return &AddressProfile{
		Address:              address,
		FirstSeen:            now,
		LastSeen:             now,
		RiskAssessment:       RiskMedium,
		ValueTier:            TierBronze,
		ChurnRisk:            0.5,
		CommunicationHistory: []CommunicationEvent{},
		TransactionPatterns:  []TransactionPattern{},
		NetworkConnections:   []string{},
		PreferredChannels:    []Channel{},
		OptimalContactTimes:  []string{},
		CustomerSegment:      SegmentNew,
		DataSource:           DataSourceFlutterbye,
		ConfidenceLevel:      0.1,
		LastAnalyzed:         now,
	}
}

// HasConnection reports whether peer is already in the network
func (p *AddressProfile) HasConnection(peer string) bool {
	for _, c := range p.NetworkConnections {
		if c == peer {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so readers never share slices with the store
func (p *AddressProfile) Clone() *AddressProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.CommunicationHistory = slices.Clone(p.CommunicationHistory)
	c.TransactionPatterns = slices.Clone(p.TransactionPatterns)
	for i := range c.TransactionPatterns {
		c.TransactionPatterns[i].PreferredTimes = slices.Clone(c.TransactionPatterns[i].PreferredTimes)
		c.TransactionPatterns[i].TransactionTypes = slices.Clone(c.TransactionPatterns[i].TransactionTypes)
	}
	c.NetworkConnections = slices.Clone(p.NetworkConnections)
	c.PreferredChannels = slices.Clone(p.PreferredChannels)
	c.OptimalContactTimes = slices.Clone(p.OptimalContactTimes)
	if p.BusinessContext != nil {
		bc := *p.BusinessContext
		if p.BusinessContext.Preferences != nil {
			bc.Preferences = make(map[string]string, len(p.BusinessContext.Preferences))
			for k, v := range p.BusinessContext.Preferences {
				bc.Preferences[k] = v
			}
		}
		c.BusinessContext = &bc
	}
	return &c
}
