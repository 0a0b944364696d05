package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"address-intelligence/internal/domain/entity"
)

// DefaultNetworkCap bounds the network term of viral potential
const DefaultNetworkCap = 100

var frequencyWeights = map[entity.Frequency]float64{
	entity.FrequencyDaily:     100,
	entity.FrequencyWeekly:    75,
	entity.FrequencyMonthly:   50,
	entity.FrequencyIrregular: 25,
}

var (
	positiveWords = []string{"great", "excellent", "love", "amazing", "perfect"}
	negativeWords = []string{"bad", "terrible", "hate", "awful", "worst"}
)

// ScoringEngine derives scores from a profile's history. It holds no state
// besides configuration and is safe for concurrent use.
type ScoringEngine struct {
	networkCap int
}

// NewScoringEngine creates a scoring engine. A non-positive cap selects
// DefaultNetworkCap.
func NewScoringEngine(networkCap int) *ScoringEngine {
	if networkCap <= 0 {
		networkCap = DefaultNetworkCap
	}
	return &ScoringEngine{networkCap: networkCap}
}

// Score recomputes every derived field of p as a unit
func (e *ScoringEngine) Score(p *entity.AddressProfile) {
	p.EngagementScore = EngagementScore(p.CommunicationHistory)
	p.ActivityScore = ActivityScore(p.TransactionPatterns)
	p.RiskAssessment = AssessRisk(p.ChurnRisk, p.EngagementScore, p.ActivityScore, len(p.CommunicationHistory))
	p.ValueTier = AssignValueTier(p.ActivityScore, p.EngagementScore, p.LoyaltyScore)
	p.ViralPotential = ViralPotential(len(p.NetworkConnections), p.EngagementScore, p.InfluenceScore, e.networkCap)
	p.PreferredChannels = PreferredChannels(p.CommunicationHistory)
	p.OptimalContactTimes = OptimalContactTimes(p.CommunicationHistory)
}

// EngagementScore weighs response rate (70 points) against response speed
// (30 points). The average response time is taken over the whole history.
func EngagementScore(history []entity.CommunicationEvent) int {
	if len(history) == 0 {
		return 0
	}

	engaged := 0
	var totalResponse float64
	for _, ev := range history {
		if ev.Engagement != entity.EngagementNone && ev.Engagement != "" {
			engaged++
		}
		if ev.ResponseTime != nil && *ev.ResponseTime > 0 {
			totalResponse += *ev.ResponseTime
		}
	}

	n := float64(len(history))
	responseRate := float64(engaged) / n
	avgResponse := totalResponse / n
	timeScore := math.Max(0, 100-avgResponse/3600)

	return clampScore(math.Round(responseRate*70 + timeScore*0.3))
}

// ActivityScore combines pattern frequency (60%) and value (40%)
func ActivityScore(patterns []entity.TransactionPattern) int {
	if len(patterns) == 0 {
		return 0
	}

	var weightSum, valueSum float64
	for _, p := range patterns {
		weightSum += frequencyWeights[p.Frequency]
		valueSum += p.AverageValue
	}
	frequencyWeight := weightSum / float64(len(patterns))
	valueWeight := math.Min(100, valueSum/1000)

	return clampScore(math.Round(frequencyWeight*0.6 + valueWeight*0.4))
}

// AssessRisk counts risk factors: 3+ high, 2 medium, otherwise low
func AssessRisk(churnRisk float64, engagement, activity, historyLen int) entity.RiskLevel {
	factors := 0
	if churnRisk > 0.7 {
		factors++
	}
	if engagement < 30 {
		factors++
	}
	if activity < 20 {
		factors++
	}
	if historyLen < 3 {
		factors++
	}

	switch {
	case factors >= 3:
		return entity.RiskHigh
	case factors == 2:
		return entity.RiskMedium
	default:
		return entity.RiskLow
	}
}

// AssignValueTier buckets the rounded mean of activity, engagement and loyalty
func AssignValueTier(activity, engagement, loyalty int) entity.ValueTier {
	avg := math.Round(float64(activity+engagement+loyalty) / 3)
	switch {
	case avg >= 90:
		return entity.TierDiamond
	case avg >= 75:
		return entity.TierGold
	case avg >= 50:
		return entity.TierSilver
	default:
		return entity.TierBronze
	}
}

// ViralPotential blends network size, engagement and influence. The network
// term is capped at networkCap and the result at 100.
func ViralPotential(networkSize, engagement, influence, networkCap int) int {
	if networkCap > 0 && networkSize > networkCap {
		networkSize = networkCap
	}
	v := float64(networkSize)*0.4 + float64(engagement)*0.4 + float64(influence)*0.2
	return clampScore(math.Round(v))
}

// AnalyzeSentiment classifies text by keyword counts
func AnalyzeSentiment(text string) entity.Sentiment {
	if text == "" {
		return entity.SentimentNeutral
	}
	content := strings.ToLower(text)

	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(content, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(content, w) {
			neg++
		}
	}

	switch {
	case pos > neg:
		return entity.SentimentPositive
	case neg > pos:
		return entity.SentimentNegative
	default:
		return entity.SentimentNeutral
	}
}

// PreferredChannels orders channels by how often they drew a response
func PreferredChannels(history []entity.CommunicationEvent) []entity.Channel {
	counts := make(map[entity.Channel]int)
	for _, ev := range history {
		if ev.Engagement == entity.EngagementResponded {
			counts[ev.Channel]++
		}
	}

	channels := make([]entity.Channel, 0, len(counts))
	for ch := range counts {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		if counts[channels[i]] != counts[channels[j]] {
			return counts[channels[i]] > counts[channels[j]]
		}
		return channels[i] < channels[j]
	})
	return channels
}

// OptimalContactTimes lists hours ("HH:00", UTC) ordered by response count
func OptimalContactTimes(history []entity.CommunicationEvent) []string {
	counts := make(map[int]int)
	for _, ev := range history {
		if ev.Engagement == entity.EngagementResponded && !ev.Timestamp.IsZero() {
			counts[ev.Timestamp.UTC().Hour()]++
		}
	}

	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})

	times := make([]string, len(hours))
	for i, h := range hours {
		times[i] = fmt.Sprintf("%02d:00", h)
	}
	return times
}

func clampScore(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
