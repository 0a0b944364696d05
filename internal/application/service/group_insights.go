package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"address-intelligence/internal/domain/entity"
	domain_service "address-intelligence/internal/domain/service"

	"go.uber.org/zap"
)

const (
	highRiskGroupRatio     = 0.3
	moderateRiskGroupRatio = 0.1
	highFrequencyRatio     = 0.4
	aggressiveRatio        = 0.3
	highlyActiveRatio      = 0.5
	opportunityActiveRatio = 0.3
	fallbackActivityCutoff = 50
	minNarrativeItems      = 3

	riskProfileHigh     = "high_risk_group"
	riskProfileModerate = "moderate_risk_group"
	riskProfileLow      = "low_risk_group"
)

func computeDemographics(cohort []*entity.AddressProfile) entity.Demographics {
	d := entity.Demographics{
		AverageScores:     averageScores(cohort),
		RiskLevels:        make(map[string]int),
		MarketingSegments: make(map[string]int),
		SourcePlatforms:   make(map[string]int),
		PortfolioSizes:    make(map[string]int),
	}

	for _, p := range cohort {
		d.RiskLevels[orUnknown(string(p.RiskAssessment))]++
		d.MarketingSegments[orUnknown(p.CustomerSegment)]++
		d.SourcePlatforms[orUnknown(string(p.DataSource))]++
		d.PortfolioSizes[string(domain_service.PortfolioSizeOf(p))]++
	}
	d.MarketingSegmentation = d.MarketingSegments

	highRisk := float64(d.RiskLevels[string(entity.RiskHigh)]+d.RiskLevels[string(entity.RiskCritical)]) / float64(len(cohort))
	switch {
	case highRisk > highRiskGroupRatio:
		d.RiskProfile = riskProfileHigh
	case highRisk > moderateRiskGroupRatio:
		d.RiskProfile = riskProfileModerate
	default:
		d.RiskProfile = riskProfileLow
	}
	return d
}

func averageScores(profiles []*entity.AddressProfile) map[entity.ScoreType]int {
	out := make(map[entity.ScoreType]int, len(entity.AllScoreTypes))
	if len(profiles) == 0 {
		return out
	}
	for _, st := range entity.AllScoreTypes {
		sum := 0
		for _, p := range profiles {
			v, _ := p.Score(st)
			sum += v
		}
		out[st] = int(math.Round(float64(sum) / float64(len(profiles))))
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func computeBehavioral(cohort []*entity.AddressProfile) entity.Behavioral {
	b := entity.Behavioral{
		TradingPatterns:      []string{},
		TradingFrequency:     make(map[string]int),
		RiskTolerance:        make(map[string]int),
		ActivityLevels:       make(map[string]int),
		PortfolioComposition: make(map[entity.PortfolioSize]float64, 4),
	}

	sizes := make(map[entity.PortfolioSize]int, 4)
	for _, p := range cohort {
		b.TradingFrequency[string(domain_service.TradingFrequencyOf(p))]++
		b.RiskTolerance[string(domain_service.RiskToleranceOf(p))]++
		b.ActivityLevels[string(domain_service.ActivityLevelOf(p))]++
		sizes[domain_service.PortfolioSizeOf(p)]++
	}

	total := float64(len(cohort))
	highFrequency := b.TradingFrequency[string(entity.TradingHigh)] + b.TradingFrequency[string(entity.TradingVeryHigh)]
	if float64(highFrequency)/total > highFrequencyRatio {
		b.TradingPatterns = append(b.TradingPatterns, "High frequency trading dominant")
	}
	if float64(b.RiskTolerance[string(entity.ToleranceAggressive)])/total > aggressiveRatio {
		b.TradingPatterns = append(b.TradingPatterns, "Aggressive risk-taking behavior")
	}
	if float64(b.ActivityLevels[string(entity.ActivityHigh)])/total > highlyActiveRatio {
		b.TradingPatterns = append(b.TradingPatterns, "Highly active user base")
	}

	for _, size := range []entity.PortfolioSize{entity.PortfolioWhale, entity.PortfolioLarge, entity.PortfolioMedium, entity.PortfolioSmall} {
		b.PortfolioComposition[size] = math.Round(float64(sizes[size])/total*1000) / 10
	}
	return b
}

// narrate asks the LLM for a narrative and falls back to a templated one on
// any failure. The error never reaches the caller.
func (s *GroupAnalysisService) narrate(ctx context.Context, cohort []*entity.AddressProfile, d *entity.Demographics, b *entity.Behavioral) entity.Narrative {
	if s.llm == nil {
		return fallbackNarrative(len(cohort), d)
	}

	lctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	raw, err := s.llm.Complete(lctx, narrativePrompt(len(cohort), d, b), domain_service.CompletionOptions{JSONMode: true})
	if errors.Is(err, domain_service.ErrLLMDisabled) {
		s.logger.Debug("LLM disabled, using fallback narrative", zap.Int("cohort", len(cohort)))
		return fallbackNarrative(len(cohort), d)
	}
	if err != nil {
		s.logger.Warn("LLM narrative failed, using fallback", zap.Int("cohort", len(cohort)), zap.Error(err))
		return fallbackNarrative(len(cohort), d)
	}

	var n entity.Narrative
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		s.logger.Warn("LLM narrative was not valid JSON, using fallback", zap.Error(err))
		return fallbackNarrative(len(cohort), d)
	}
	if strings.TrimSpace(n.Summary) == "" {
		s.logger.Warn("LLM narrative had no summary, using fallback")
		return fallbackNarrative(len(cohort), d)
	}
	n.Fallback = false
	return n
}

func narrativePrompt(count int, d *entity.Demographics, b *entity.Behavioral) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an expert blockchain wallet analyst. Analyze this group of %d wallets and provide insights.\n\n", count)
	sb.WriteString("Group Demographics:\n")
	for _, st := range entity.AllScoreTypes {
		fmt.Fprintf(&sb, "- Average %s: %d\n", st, d.AverageScores[st])
	}
	fmt.Fprintf(&sb, "- Risk Profile: %s\n\n", d.RiskProfile)
	fmt.Fprintf(&sb, "Marketing Segments: %s\n", mustJSON(d.MarketingSegmentation))
	fmt.Fprintf(&sb, "Risk Tolerance: %s\n", mustJSON(b.RiskTolerance))
	fmt.Fprintf(&sb, "Portfolio Composition: %s\n\n", mustJSON(b.PortfolioComposition))
	sb.WriteString(`Provide analysis in JSON format:
{
  "summary": "2-3 sentence overview of this wallet group",
  "keyFindings": ["finding1", "finding2", "finding3"],
  "actionableInsights": ["insight1", "insight2", "insight3"],
  "riskAssessment": "risk level and mitigation strategies",
  "marketingStrategy": "recommended marketing approach for this group"
}`)
	return sb.String()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func fallbackNarrative(count int, d *entity.Demographics) entity.Narrative {
	activity := "moderate"
	if d.AverageScores[entity.ScoreActivity] > fallbackActivityCutoff {
		activity = "high"
	}
	return entity.Narrative{
		Summary: fmt.Sprintf("Analysis of %d wallets with average engagement score of %d",
			count, d.AverageScores[entity.ScoreEngagement]),
		KeyFindings: []string{
			fmt.Sprintf("Group shows %s characteristics", d.RiskProfile),
			fmt.Sprintf("Primary marketing segment: %s", topKey(d.MarketingSegmentation)),
			fmt.Sprintf("Average activity level indicates %s engagement", activity),
		},
		ActionableInsights: []string{
			"Customize marketing messages based on risk tolerance distribution",
			"Focus on high-activity segments for engagement campaigns",
			"Implement risk-appropriate product offerings",
		},
		RiskAssessment:    fmt.Sprintf("Group classified as %s", d.RiskProfile),
		MarketingStrategy: "Segment-based targeted campaigns recommended",
		Fallback:          true,
	}
}

// topKey returns the most frequent key; ties go to the alphabetically first
func topKey(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "unknown"
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best
}

func computeStrategic(d *entity.Demographics, b *entity.Behavioral) entity.Strategic {
	s := entity.Strategic{
		MarketingRecommendations: []string{},
		RiskMitigation:           []string{},
		Opportunities:            []string{},
	}

	var targeting []string
	switch topKey(d.MarketingSegmentation) {
	case "whale":
		s.MarketingRecommendations = append(s.MarketingRecommendations, "VIP treatment and exclusive access programs")
		targeting = append(targeting, "High-touch, personalized outreach")
	case "retail":
		s.MarketingRecommendations = append(s.MarketingRecommendations, "Educational content and beginner-friendly features")
		targeting = append(targeting, "Broad-based marketing with simple messaging")
	}

	if d.RiskProfile == riskProfileHigh {
		s.RiskMitigation = append(s.RiskMitigation,
			"Enhanced KYC and monitoring protocols",
			"Automated risk alerts and intervention systems")
	}

	total := 0
	for _, n := range b.ActivityLevels {
		total += n
	}
	if total > 0 && float64(b.ActivityLevels[string(entity.ActivityHigh)])/float64(total) > opportunityActiveRatio {
		s.Opportunities = append(s.Opportunities,
			"Gamification and rewards programs",
			"Advanced trading features and tools")
	}

	s.TargetingStrategy = strings.Join(targeting, ", ")
	if s.TargetingStrategy == "" {
		s.TargetingStrategy = "Balanced approach across segments"
	}
	return s
}

func computeComparative(population []*entity.AddressProfile, d *entity.Demographics) entity.Comparative {
	platform := averageScores(population)
	c := entity.Comparative{
		VsAverage:             make(map[entity.ScoreType]string, len(entity.AllScoreTypes)),
		CompetitiveAdvantages: []string{},
	}

	for _, st := range entity.AllScoreTypes {
		group, avg := d.AverageScores[st], platform[st]
		if avg == 0 {
			c.VsAverage[st] = "no platform baseline"
			continue
		}
		diff := math.Round(float64(group-avg)/float64(avg)*1000) / 10
		direction := "below"
		if diff > 0 {
			direction = "above"
		}
		c.VsAverage[st] = fmt.Sprintf("%.1f%% %s platform average", diff, direction)
	}

	c.MarketPosition = "Below average market position"
	if d.AverageScores[entity.ScoreEngagement] > platform[entity.ScoreEngagement] {
		c.MarketPosition = "Above average market position"
	}
	if d.AverageScores[entity.ScoreActivity] > platform[entity.ScoreActivity] {
		c.CompetitiveAdvantages = append(c.CompetitiveAdvantages, "Superior trading activity patterns")
	}
	if d.AverageScores[entity.ScoreEngagement] > platform[entity.ScoreEngagement] {
		c.CompetitiveAdvantages = append(c.CompetitiveAdvantages, "Higher engagement levels")
	}
	if d.AverageScores[entity.ScoreViral] > platform[entity.ScoreViral] {
		c.CompetitiveAdvantages = append(c.CompetitiveAdvantages, "Stronger network reach")
	}
	return c
}

// confidenceScore works in tenths so 0.5+0.3+0.1+0.1 lands exactly on 1.0
func confidenceScore(count int, n *entity.Narrative) float64 {
	tenths := 5
	switch {
	case count > 100:
		tenths += 3
	case count > 50:
		tenths += 2
	case count > 20:
		tenths++
	}
	if len(n.KeyFindings) >= minNarrativeItems {
		tenths++
	}
	if len(n.ActionableInsights) >= minNarrativeItems {
		tenths++
	}
	return float64(min(tenths, 10)) / 10
}
