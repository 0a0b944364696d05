package entity

import (
	"errors"
	"time"
)

var (
	// ErrMalformedAddress marks a candidate that is not a valid blockchain address
	ErrMalformedAddress = errors.New("malformed address")
	// ErrEmptyCohort is returned when a filter matches no profiles
	ErrEmptyCohort = errors.New("cohort matched no profiles")
	// ErrInvalidFilter is returned for filters that can never be satisfied
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidPatch is returned for profile patches with out-of-range values
	ErrInvalidPatch = errors.New("invalid profile patch")
	// ErrInvalidEvent is returned for events or messages with unknown enum values
	ErrInvalidEvent = errors.New("invalid communication event")
)

// Chain identifies the network an address belongs to
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBitcoin  Chain = "bitcoin"
	ChainSolana   Chain = "solana"
)

// MessageStatus is the delivery state reported by the messaging platform
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusResponded MessageStatus = "responded"
)

// Engagement maps a delivery status onto an engagement level
func (s MessageStatus) Engagement() EngagementLevel {
	switch s {
	case StatusDelivered:
		return EngagementViewed
	case StatusRead:
		return EngagementClicked
	case StatusResponded:
		return EngagementResponded
	default:
		return EngagementNone
	}
}

// Message is an inbound message from the messaging platform
type Message struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"` // phone, email or wallet address
	Content      string            `json:"content"`
	Channel      Channel           `json:"channel"`
	Campaign     string            `json:"campaign,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       MessageStatus     `json:"status"`
	ResponseTime *float64          `json:"response_time,omitempty"`
}

// MessageType returns the campaign name or "general"
func (m *Message) MessageType() string {
	if m.Campaign == "" {
		return "general"
	}
	return m.Campaign
}

// ExtractionMethod records which heuristic set an extraction's confidence
type ExtractionMethod string

const (
	ExtractionDirect   ExtractionMethod = "direct"
	ExtractionInferred ExtractionMethod = "inferred"
	ExtractionLookup   ExtractionMethod = "lookup"
)

// ExtractionResult is the outcome of recovering addresses from a message
type ExtractionResult struct {
	Addresses  []string         `json:"addresses"`
	Confidence float64          `json:"confidence"`
	Method     ExtractionMethod `json:"method"`
	Source     string           `json:"source"`
}

// ActivityEvent is an audit record sent to the activity logger
type ActivityEvent struct {
	UserID    int64          `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// Activity actions
const (
	ActionProfileUpdate = "address_intelligence_update"
	ActionBridgeMessage = "bridge_message"
)

// TriggerKind names an automated response fired by the bridge
type TriggerKind string

const (
	TriggerVIP        TriggerKind = "vip_response"
	TriggerRetention  TriggerKind = "retention_message"
	TriggerInfluencer TriggerKind = "influencer_outreach"
)

// TriggerEvent is handed to response hooks when a trigger rule fires
type TriggerEvent struct {
	Kind           TriggerKind `json:"kind"`
	Address        string      `json:"address"`
	MessageID      string      `json:"message_id"`
	ValueTier      ValueTier   `json:"value_tier"`
	RiskAssessment RiskLevel   `json:"risk_assessment"`
	Engagement     int         `json:"engagement_score"`
	ViralPotential int         `json:"viral_potential"`
	ChurnRisk      float64     `json:"churn_risk"`
	FiredAt        time.Time   `json:"fired_at"`
}
