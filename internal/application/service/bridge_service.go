package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"address-intelligence/internal/domain/entity"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultIngestConcurrency  = 8
	defaultHookTimeout        = 10 * time.Second
	defaultExpectedEngagement = 10
	vipEngagementThreshold    = 80
	retentionChurnThreshold   = 0.7
	influencerViralThreshold  = 85
	lowEngagementThreshold    = 30
)

// BridgeOutcome reports what handling one message did
type BridgeOutcome struct {
	MessageID  string                   `json:"message_id"`
	Extraction entity.ExtractionResult  `json:"extraction"`
	Profiles   []*entity.AddressProfile `json:"profiles"`
	Triggers   []entity.TriggerEvent    `json:"triggers"`
}

// BridgeService wires extraction, ingestion and trigger rules per message
type BridgeService struct {
	extractor    *domain_service.AddressExtractor
	intelligence *IntelligenceService
	activity     domain_service.ActivityLogger
	hooks        []domain_service.ResponseHook
	concurrency  int
	hookTimeout  time.Duration
	hookWG       sync.WaitGroup
	logger       *logger.Logger
	now          func() time.Time
}

// NewBridgeService creates a new bridge
func NewBridgeService(
	extractor *domain_service.AddressExtractor,
	intelligence *IntelligenceService,
	activity domain_service.ActivityLogger,
	hooks []domain_service.ResponseHook,
	concurrency int,
	logger *logger.Logger,
) *BridgeService {
	if concurrency <= 0 {
		concurrency = defaultIngestConcurrency
	}
	return &BridgeService{
		extractor:    extractor,
		intelligence: intelligence,
		activity:     activity,
		hooks:        hooks,
		concurrency:  concurrency,
		hookTimeout:  defaultHookTimeout,
		logger:       logger.WithComponent("bridge-service"),
		now:          time.Now,
	}
}

// HandleMessage runs the full pipeline for one inbound message. Failures for
// a single address or hook are logged and never abort the message.
func (b *BridgeService) HandleMessage(ctx context.Context, msg *entity.Message) *BridgeOutcome {
	log := b.logger.WithFields(map[string]interface{}{"message_id": msg.ID, "channel": msg.Channel})

	if msg.Channel == "" {
		msg.Channel = entity.ChannelSMS
	}
	if !msg.Channel.IsValid() {
		log.Warn("Dropping message with unknown channel")
		return &BridgeOutcome{MessageID: msg.ID, Extraction: entity.ExtractionResult{Addresses: []string{}}}
	}

	extraction := b.extractor.Extract(ctx, msg)
	outcome := &BridgeOutcome{MessageID: msg.ID, Extraction: extraction}

	input := CommunicationInput{
		Channel:      msg.Channel,
		Direction:    entity.DirectionOutbound,
		MessageType:  msg.MessageType(),
		ResponseTime: msg.ResponseTime,
		Engagement:   msg.Status.Engagement(),
		Content:      msg.Content,
		Timestamp:    msg.Timestamp,
	}

	// Profiles are independent, so addresses are ingested in parallel
	profiles := make([]*entity.AddressProfile, len(extraction.Addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, address := range extraction.Addresses {
		g.Go(func() error {
			p, err := b.intelligence.Ingest(gctx, address, input)
			if err != nil {
				log.Warn("Failed to ingest address", zap.String("address", address), zap.Error(err))
				return nil
			}
			profiles[i] = p
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range profiles {
		if p != nil {
			outcome.Profiles = append(outcome.Profiles, p)
		}
	}

	b.logActivity(ctx, msg, extraction)

	for _, p := range outcome.Profiles {
		triggers := b.evaluateTriggers(p, msg)
		outcome.Triggers = append(outcome.Triggers, triggers...)
		b.fire(ctx, triggers)
	}

	log.Info("Processed message",
		zap.Int("addresses", len(extraction.Addresses)),
		zap.String("method", string(extraction.Method)),
		zap.Float64("confidence", extraction.Confidence),
		zap.Int("triggers", len(outcome.Triggers)))

	return outcome
}

func (b *BridgeService) evaluateTriggers(p *entity.AddressProfile, msg *entity.Message) []entity.TriggerEvent {
	var kinds []entity.TriggerKind
	if p.ValueTier == entity.TierDiamond && p.EngagementScore > vipEngagementThreshold {
		kinds = append(kinds, entity.TriggerVIP)
	}
	if p.RiskAssessment == entity.RiskHigh && p.ChurnRisk > retentionChurnThreshold {
		kinds = append(kinds, entity.TriggerRetention)
	}
	if p.ViralPotential > influencerViralThreshold {
		kinds = append(kinds, entity.TriggerInfluencer)
	}

	events := make([]entity.TriggerEvent, 0, len(kinds))
	for _, k := range kinds {
		events = append(events, entity.TriggerEvent{
			Kind:           k,
			Address:        p.Address,
			MessageID:      msg.ID,
			ValueTier:      p.ValueTier,
			RiskAssessment: p.RiskAssessment,
			Engagement:     p.EngagementScore,
			ViralPotential: p.ViralPotential,
			ChurnRisk:      p.ChurnRisk,
			FiredAt:        b.now(),
		})
	}
	return events
}

// fire hands one address's events to every hook in the background. Each hook
// gets them in order from a single goroutine. Hooks outlive the request
// context but every call is bounded by hookTimeout.
func (b *BridgeService) fire(ctx context.Context, events []entity.TriggerEvent) {
	if len(events) == 0 {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, hook := range b.hooks {
		b.hookWG.Add(1)
		go func(hook domain_service.ResponseHook) {
			defer b.hookWG.Done()
			for _, event := range events {
				b.fireOne(base, hook, event)
			}
		}(hook)
	}
}

func (b *BridgeService) fireOne(ctx context.Context, hook domain_service.ResponseHook, event entity.TriggerEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Response hook panicked",
				zap.String("kind", string(event.Kind)),
				zap.Any("panic", r))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, b.hookTimeout)
	defer cancel()
	if err := hook.Fire(hctx, event); err != nil {
		b.logger.Warn("Response hook failed",
			zap.String("kind", string(event.Kind)),
			zap.String("address", event.Address),
			zap.Error(err))
	}
}

// Drain waits for in-flight hooks
func (b *BridgeService) Drain() {
	b.hookWG.Wait()
}

func (b *BridgeService) logActivity(ctx context.Context, msg *entity.Message, extraction entity.ExtractionResult) {
	if b.activity == nil {
		return
	}
	event := entity.ActivityEvent{
		Action: entity.ActionBridgeMessage,
		Details: map[string]any{
			"message_id":        msg.ID,
			"channel":           msg.Channel,
			"addresses_found":   len(extraction.Addresses),
			"extraction_method": extraction.Method,
			"confidence":        extraction.Confidence,
		},
		SessionID: "bridge_" + msg.ID,
		Timestamp: b.now(),
	}
	if err := b.activity.Log(ctx, event); err != nil {
		b.logger.Warn("Failed to log bridge activity", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// OptimizeCampaign plans a personalised send for each target address,
// highest expected engagement first
func (b *BridgeService) OptimizeCampaign(ctx context.Context, addresses []string, campaignType string) (*entity.CampaignPlan, error) {
	messageType, known := entity.ParseMessageType(campaignType)
	plan := &entity.CampaignPlan{
		Messages: make([]entity.CampaignMessage, 0, len(addresses)),
		Insights: entity.CampaignInsights{TotalReach: len(addresses)},
	}

	total := 0
	for _, address := range addresses {
		p, err := b.intelligence.GetProfile(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", address, err)
		}

		content := personalizedMessage(p, messageType)
		if p != nil && !known {
			content = entity.GenericOffer
		}

		expected := defaultExpectedEngagement
		channel := entity.ChannelSMS
		if p != nil {
			if p.EngagementScore > 0 {
				expected = p.EngagementScore
			}
			if len(p.PreferredChannels) > 0 {
				channel = p.PreferredChannels[0]
			}
			if p.ValueTier == entity.TierGold || p.ValueTier == entity.TierDiamond {
				plan.Insights.HighValueTargets++
			}
			if p.RiskAssessment == entity.RiskHigh {
				plan.Insights.RiskAddresses++
			}
		}
		total += expected

		plan.Messages = append(plan.Messages, entity.CampaignMessage{
			Address:             address,
			PersonalizedContent: content,
			OptimalSendTime:     optimalContactTime(p),
			ExpectedEngagement:  expected,
			RecommendedChannel:  channel,
		})
	}

	sort.SliceStable(plan.Messages, func(i, j int) bool {
		return plan.Messages[i].ExpectedEngagement > plan.Messages[j].ExpectedEngagement
	})
	if len(addresses) > 0 {
		plan.Insights.ExpectedResponse = int(math.Round(float64(total) / float64(len(addresses))))
	}
	return plan, nil
}

// BulkAnalyze returns each address's profile with recommendations
func (b *BridgeService) BulkAnalyze(ctx context.Context, addresses []string) ([]entity.AddressAnalysis, error) {
	results := make([]entity.AddressAnalysis, 0, len(addresses))
	for _, address := range addresses {
		p, err := b.intelligence.GetProfile(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile %s: %w", address, err)
		}
		results = append(results, entity.AddressAnalysis{
			Address:         address,
			Profile:         p,
			Recommendations: Recommendations(p),
		})
	}
	return results, nil
}

// Recommendations lists actions suggested by a profile's scores
func Recommendations(p *entity.AddressProfile) []string {
	if p == nil {
		return []string{"No data available - start collecting intelligence"}
	}
	recs := []string{}
	if p.EngagementScore < lowEngagementThreshold {
		recs = append(recs, "Low engagement - try different communication channels")
	}
	if p.ValueTier == entity.TierDiamond {
		recs = append(recs, "VIP treatment recommended - personalized premium content")
	}
	if p.RiskAssessment == entity.RiskHigh {
		recs = append(recs, "High churn risk - immediate retention campaign needed")
	}
	if p.ViralPotential > highViralThreshold {
		recs = append(recs, "High viral potential - consider influencer partnership")
	}
	return recs
}

// Report extends the intelligence report with marketing opportunities
func (b *BridgeService) Report(ctx context.Context) (*entity.IntelligenceReport, error) {
	report, err := b.intelligence.Report(ctx)
	if err != nil {
		return nil, err
	}

	viralTop := 0
	for _, p := range report.TopPerformers {
		if p.ViralPotential > highViralThreshold {
			viralTop++
		}
	}
	report.MarketingOpportunities = []string{
		fmt.Sprintf("%d diamond tier addresses ready for premium campaigns", report.TierDistribution[entity.TierDiamond]),
		fmt.Sprintf("%d top performers have high viral potential", viralTop),
		fmt.Sprintf("Average engagement %d%% suggests optimization opportunities", int(math.Round(report.AverageEngagement))),
		fmt.Sprintf("%d high-risk addresses need immediate retention campaigns", report.RiskDistribution[entity.RiskHigh]),
	}
	return report, nil
}
