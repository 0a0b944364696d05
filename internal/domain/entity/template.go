package entity

import "strings"

// MessageType selects a personalised message family
type MessageType int

const (
	MessageWelcome MessageType = iota
	MessagePromotion

	messageTypeCount
)

// GenericGreeting is used for addresses with no profile
const GenericGreeting = "Hello! We have an exciting update for you."

// GenericOffer is used for message types with no template family
const GenericOffer = "We have something special for you!"

var messageTypeNames = [messageTypeCount]string{
	MessageWelcome:   "welcome",
	MessagePromotion: "promotion",
}

// String returns the wire name of the message type
func (m MessageType) String() string {
	if m < 0 || m >= messageTypeCount {
		return "unknown"
	}
	return messageTypeNames[m]
}

// ParseMessageType resolves a wire name; ok is false for unknown names
func ParseMessageType(s string) (MessageType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range messageTypeNames {
		if name == s {
			return MessageType(i), true
		}
	}
	return 0, false
}

const tierCount = 4

// tierIndex orders tiers bronze..diamond
func tierIndex(t ValueTier) (int, bool) {
	switch t {
	case TierBronze:
		return 0, true
	case TierSilver:
		return 1, true
	case TierGold:
		return 2, true
	case TierDiamond:
		return 3, true
	}
	return 0, false
}

// messageTemplates is indexed [MessageType][tierIndex]
var messageTemplates = [messageTypeCount][tierCount]string{
	MessageWelcome: {
		"Welcome to our community! We're glad you're here.",
		"Welcome! We appreciate active community members like you.",
		"Welcome to our gold tier! We're excited to have such an engaged member join us.",
		"Welcome to our exclusive diamond tier! You're among our most valued community members.",
	},
	MessagePromotion: {
		"Check out this exciting new feature!",
		"We think you'll love this new opportunity.",
		"Special promotion for our gold tier members.",
		"Exclusive offer for our diamond members - this won't last long!",
	},
}

// MessageTemplate returns the message for a type and tier
func MessageTemplate(m MessageType, tier ValueTier) string {
	idx, ok := tierIndex(tier)
	if !ok || m < 0 || m >= messageTypeCount {
		return GenericOffer
	}
	return messageTemplates[m][idx]
}
