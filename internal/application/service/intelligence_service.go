package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/domain/repository"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/logger"

	"go.uber.org/zap"
)

const (
	defaultTopLimit    = 100
	reportTopLimit     = 10
	defaultContactTime = "10:00"
	highViralThreshold = 80
)

// CommunicationInput describes one communication to record against an address
type CommunicationInput struct {
	Channel      entity.Channel         `json:"channel"`
	Direction    entity.Direction       `json:"direction"`
	MessageType  string                 `json:"message_type"`
	ResponseTime *float64               `json:"response_time,omitempty"`
	Engagement   entity.EngagementLevel `json:"engagement"`
	Content      string                 `json:"content,omitempty"`
	Timestamp    time.Time              `json:"timestamp,omitempty"`
}

// ProfilePatch sets externally supplied profile inputs. Nil fields are left
// untouched.
type ProfilePatch struct {
	LoyaltyScore    *int               `json:"loyalty_score,omitempty"`
	InfluenceScore  *int               `json:"influence_score,omitempty"`
	ChurnRisk       *float64           `json:"churn_risk,omitempty"`
	CustomerSegment *string            `json:"customer_segment,omitempty"`
	DataSource      *entity.DataSource `json:"data_source,omitempty"`
	ConfidenceLevel *float64           `json:"confidence_level,omitempty"`
}

func (p ProfilePatch) validate() error {
	for name, v := range map[string]*int{"loyalty_score": p.LoyaltyScore, "influence_score": p.InfluenceScore} {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("%w: %s %d outside 0-100", entity.ErrInvalidPatch, name, *v)
		}
	}
	for name, v := range map[string]*float64{"churn_risk": p.ChurnRisk, "confidence_level": p.ConfidenceLevel} {
		if v != nil && (*v < 0 || *v > 1 || math.IsNaN(*v)) {
			return fmt.Errorf("%w: %s %v outside 0-1", entity.ErrInvalidPatch, name, *v)
		}
	}
	return nil
}

// IntelligenceService owns ingestion and querying of address profiles
type IntelligenceService struct {
	repo       repository.ProfileRepository
	scoring    *domain_service.ScoringEngine
	classifier domain_service.AddressClassifier
	activity   domain_service.ActivityLogger
	logger     *logger.Logger
	now        func() time.Time
}

// NewIntelligenceService creates a new intelligence service
func NewIntelligenceService(
	repo repository.ProfileRepository,
	scoring *domain_service.ScoringEngine,
	classifier domain_service.AddressClassifier,
	activity domain_service.ActivityLogger,
	logger *logger.Logger,
) *IntelligenceService {
	return &IntelligenceService{
		repo:       repo,
		scoring:    scoring,
		classifier: classifier,
		activity:   activity,
		logger:     logger.WithComponent("intelligence-service"),
		now:        time.Now,
	}
}

// Ingest appends a communication event and rescores the profile. Malformed
// addresses are logged and reported with entity.ErrMalformedAddress, unknown
// channel, direction or engagement values with entity.ErrInvalidEvent. An
// empty direction or engagement defaults to outbound and none.
func (s *IntelligenceService) Ingest(ctx context.Context, address string, in CommunicationInput) (*entity.AddressProfile, error) {
	event := entity.CommunicationEvent{
		Timestamp:    in.Timestamp,
		Channel:      in.Channel,
		Direction:    in.Direction,
		MessageType:  in.MessageType,
		ResponseTime: in.ResponseTime,
		Engagement:   in.Engagement,
		Sentiment:    domain_service.AnalyzeSentiment(in.Content),
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if event.Direction == "" {
		event.Direction = entity.DirectionOutbound
	}
	if event.Engagement == "" {
		event.Engagement = entity.EngagementNone
	}
	if event.MessageType == "" {
		event.MessageType = "general"
	}
	if err := validateEvent(&event); err != nil {
		s.logger.Warn("Rejected communication event", zap.String("address", address), zap.Error(err))
		return nil, err
	}

	return s.update(ctx, address, func(p *entity.AddressProfile, _ bool) error {
		p.CommunicationHistory = append(p.CommunicationHistory, event)
		return nil
	})
}

func validateEvent(ev *entity.CommunicationEvent) error {
	switch {
	case !ev.Channel.IsValid():
		return fmt.Errorf("%w: channel %q", entity.ErrInvalidEvent, ev.Channel)
	case !ev.Direction.IsValid():
		return fmt.Errorf("%w: direction %q", entity.ErrInvalidEvent, ev.Direction)
	case !ev.Engagement.IsValid():
		return fmt.Errorf("%w: engagement %q", entity.ErrInvalidEvent, ev.Engagement)
	}
	return nil
}

// IngestTransactions replaces the profile's transaction patterns with ones
// derived from raw transactions
func (s *IntelligenceService) IngestTransactions(ctx context.Context, address string, data []entity.TransactionData) (*entity.AddressProfile, error) {
	patterns := domain_service.AnalyzeTransactions(data)
	return s.update(ctx, address, func(p *entity.AddressProfile, _ bool) error {
		p.TransactionPatterns = patterns
		return nil
	})
}

// CaptureBusinessContext records a Pool Pal customer
func (s *IntelligenceService) CaptureBusinessContext(ctx context.Context, address string, bc entity.BusinessContext) (*entity.AddressProfile, error) {
	return s.update(ctx, address, func(p *entity.AddressProfile, _ bool) error {
		p.BusinessContext = &bc
		p.DataSource = entity.DataSourcePoolPal
		p.CustomerSegment = entity.SegmentPoolOwner
		return nil
	})
}

// Connect adds related addresses to the profile's network
func (s *IntelligenceService) Connect(ctx context.Context, address string, peers ...string) (*entity.AddressProfile, error) {
	valid := make([]string, 0, len(peers))
	for _, peer := range peers {
		if peer == address {
			continue
		}
		if _, err := s.classifier.Classify(peer); err != nil {
			s.logger.Warn("Skipping malformed network peer", zap.String("address", address), zap.Error(err))
			continue
		}
		valid = append(valid, peer)
	}

	return s.update(ctx, address, func(p *entity.AddressProfile, _ bool) error {
		for _, peer := range valid {
			if !p.HasConnection(peer) {
				p.NetworkConnections = append(p.NetworkConnections, peer)
			}
		}
		return nil
	})
}

// Upsert applies a patch to a profile, creating it on first sight
func (s *IntelligenceService) Upsert(ctx context.Context, address string, patch ProfilePatch) (*entity.AddressProfile, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	return s.update(ctx, address, func(p *entity.AddressProfile, _ bool) error {
		if patch.LoyaltyScore != nil {
			p.LoyaltyScore = *patch.LoyaltyScore
		}
		if patch.InfluenceScore != nil {
			p.InfluenceScore = *patch.InfluenceScore
		}
		if patch.ChurnRisk != nil {
			p.ChurnRisk = *patch.ChurnRisk
		}
		if patch.CustomerSegment != nil {
			p.CustomerSegment = *patch.CustomerSegment
		}
		if patch.DataSource != nil {
			p.DataSource = *patch.DataSource
		}
		if patch.ConfidenceLevel != nil {
			p.ConfidenceLevel = *patch.ConfidenceLevel
		}
		return nil
	})
}

// update validates the address, applies fn, rescores and stamps timestamps
// inside the repository's per-address critical section
func (s *IntelligenceService) update(ctx context.Context, address string, fn repository.MutateFunc) (*entity.AddressProfile, error) {
	if _, err := s.classifier.Classify(address); err != nil {
		s.logger.Warn("Rejected update for malformed address", zap.String("address", address), zap.Error(err))
		return nil, err
	}

	profile, err := s.repo.Mutate(ctx, address, func(p *entity.AddressProfile, created bool) error {
		if err := fn(p, created); err != nil {
			return err
		}
		now := s.now()
		if now.Before(p.FirstSeen) {
			now = p.FirstSeen
		}
		p.LastSeen = now
		s.scoring.Score(p)
		p.LastAnalyzed = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile %s: %w", address, err)
	}

	s.audit(ctx, profile)
	return profile, nil
}

func (s *IntelligenceService) audit(ctx context.Context, p *entity.AddressProfile) {
	if s.activity == nil {
		return
	}
	now := s.now()
	event := entity.ActivityEvent{
		Action: entity.ActionProfileUpdate,
		Details: map[string]any{
			"address": p.Address,
			"scores": map[string]int{
				"activity":   p.ActivityScore,
				"engagement": p.EngagementScore,
				"viral":      p.ViralPotential,
			},
			"tier": p.ValueTier,
			"risk": p.RiskAssessment,
		},
		SessionID: fmt.Sprintf("address_intel_%d", now.UnixMilli()),
		Timestamp: now,
	}
	if err := s.activity.Log(ctx, event); err != nil {
		s.logger.Warn("Failed to log profile activity", zap.String("address", p.Address), zap.Error(err))
	}
}

// GetProfile returns the profile or nil for an unknown address
func (s *IntelligenceService) GetProfile(ctx context.Context, address string) (*entity.AddressProfile, error) {
	return s.repo.Get(ctx, address)
}

// TopByValue returns the highest value profiles; limit<=0 selects 100
func (s *IntelligenceService) TopByValue(ctx context.Context, limit int) ([]*entity.AddressProfile, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	return s.repo.TopByValue(ctx, limit)
}

// BySegment returns profiles in a customer segment
func (s *IntelligenceService) BySegment(ctx context.Context, segment string) ([]*entity.AddressProfile, error) {
	return s.repo.BySegment(ctx, segment)
}

// OptimalContactTime returns the most responsive hour or "10:00"
func (s *IntelligenceService) OptimalContactTime(ctx context.Context, address string) (string, error) {
	p, err := s.repo.Get(ctx, address)
	if err != nil {
		return "", err
	}
	return optimalContactTime(p), nil
}

func optimalContactTime(p *entity.AddressProfile) string {
	if p == nil || len(p.OptimalContactTimes) == 0 {
		return defaultContactTime
	}
	return p.OptimalContactTimes[0]
}

// PersonalizedMessage picks the template for the address's tier
func (s *IntelligenceService) PersonalizedMessage(ctx context.Context, address string, messageType entity.MessageType) (string, error) {
	p, err := s.repo.Get(ctx, address)
	if err != nil {
		return "", err
	}
	return personalizedMessage(p, messageType), nil
}

func personalizedMessage(p *entity.AddressProfile, messageType entity.MessageType) string {
	if p == nil {
		return entity.GenericGreeting
	}
	return entity.MessageTemplate(messageType, p.ValueTier)
}

// Report summarises the whole population
func (s *IntelligenceService) Report(ctx context.Context) (*entity.IntelligenceReport, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	top, err := s.repo.TopByValue(ctx, reportTopLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load top profiles: %w", err)
	}

	report := &entity.IntelligenceReport{
		TotalAddresses:   len(all),
		TierDistribution: make(map[entity.ValueTier]int),
		RiskDistribution: make(map[entity.RiskLevel]int),
		TopPerformers:    top,
	}

	engagementSum, viral := 0, 0
	for _, p := range all {
		report.TierDistribution[p.ValueTier]++
		report.RiskDistribution[p.RiskAssessment]++
		engagementSum += p.EngagementScore
		if p.ViralPotential > highViralThreshold {
			viral++
		}
	}
	if len(all) > 0 {
		report.AverageEngagement = float64(engagementSum) / float64(len(all))
	}

	report.Insights = []string{
		fmt.Sprintf("%d diamond tier addresses generate highest value", report.TierDistribution[entity.TierDiamond]),
		fmt.Sprintf("Average engagement score: %d%%", int(math.Round(report.AverageEngagement))),
		fmt.Sprintf("%d addresses at high churn risk need attention", report.RiskDistribution[entity.RiskHigh]),
		fmt.Sprintf("%d addresses have high viral potential", viral),
	}
	return report, nil
}
