package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/domain/repository"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	previewSampleSize      = 10
	defaultLLMTimeout      = 30 * time.Second
	activeTraderMinimum    = 50
	highEngagementMinimum  = 70
	newWalletWindowInDays  = 30
	defaultAnalysisNameFmt = "Cohort analysis %s"
)

// GroupAnalysisService filters and aggregates cohorts of profiles. It only
// reads profile snapshots.
type GroupAnalysisService struct {
	repo       repository.ProfileRepository
	llm        domain_service.LLMService
	llmTimeout time.Duration
	templates  []entity.FilterTemplate
	logger     *logger.Logger
	now        func() time.Time
	newID      func() string
}

// NewGroupAnalysisService creates the cohort engine. extraTemplates are
// appended to the built-in presets.
func NewGroupAnalysisService(
	repo repository.ProfileRepository,
	llm domain_service.LLMService,
	llmTimeout time.Duration,
	extraTemplates []entity.FilterTemplate,
	logger *logger.Logger,
) *GroupAnalysisService {
	if llmTimeout <= 0 {
		llmTimeout = defaultLLMTimeout
	}
	return &GroupAnalysisService{
		repo:       repo,
		llm:        llm,
		llmTimeout: llmTimeout,
		templates:  append(builtinTemplates(), extraTemplates...),
		logger:     logger.WithComponent("group-analysis"),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Analyze runs a full cohort analysis. It fails with entity.ErrEmptyCohort
// when nothing matches; LLM problems only degrade the narrative.
func (s *GroupAnalysisService) Analyze(ctx context.Context, filter entity.GroupAnalysisFilter, name, requestedBy string) (*entity.GroupAnalysisResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	population, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	now := s.now()
	cohort := filterProfiles(population, &filter, now)
	if len(cohort) == 0 {
		return nil, entity.ErrEmptyCohort
	}

	s.logger.Info("Analyzing cohort",
		zap.String("name", name),
		zap.Int("matched", len(cohort)),
		zap.Int("population", len(population)))

	demographics := computeDemographics(cohort)
	behavioral := computeBehavioral(cohort)
	narrative := s.narrate(ctx, cohort, &demographics, &behavioral)

	if name == "" {
		name = fmt.Sprintf(defaultAnalysisNameFmt, now.UTC().Format(time.RFC3339))
	}

	return &entity.GroupAnalysisResult{
		ID:           s.newID(),
		AnalysisName: name,
		WalletCount:  len(cohort),
		Filter:       filter,
		Demographics: demographics,
		Behavioral:   behavioral,
		Strategic:    computeStrategic(&demographics, &behavioral),
		Comparative:  computeComparative(population, &demographics),
		Narrative:    narrative,
		Confidence:   confidenceScore(len(cohort), &narrative),
		GeneratedAt:  now,
		RequestedBy:  requestedBy,
	}, nil
}

// Preview counts matches and samples a few addresses. An empty match is not
// an error here.
func (s *GroupAnalysisService) Preview(ctx context.Context, filter entity.GroupAnalysisFilter) (*entity.CohortPreview, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	population, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	cohort := filterProfiles(population, &filter, s.now())
	preview := &entity.CohortPreview{
		MatchCount:      len(cohort),
		SampleAddresses: make([]string, 0, min(len(cohort), previewSampleSize)),
	}
	for _, p := range cohort[:min(len(cohort), previewSampleSize)] {
		preview.SampleAddresses = append(preview.SampleAddresses, p.Address)
	}
	return preview, nil
}

// Templates returns the preset filters
func (s *GroupAnalysisService) Templates() []entity.FilterTemplate {
	return slices.Clone(s.templates)
}

func builtinTemplates() []entity.FilterTemplate {
	activeMin := activeTraderMinimum
	engagementMin := highEngagementMinimum
	return []entity.FilterTemplate{
		{
			Name:        "High Risk Wallets",
			Description: "Analyze wallets with high or critical risk levels",
			Filter:      entity.GroupAnalysisFilter{RiskLevels: []entity.RiskLevel{entity.RiskHigh, entity.RiskCritical}},
		},
		{
			Name:        "Whale Investors",
			Description: "Analyze large portfolio holders and whales",
			Filter:      entity.GroupAnalysisFilter{PortfolioSizes: []entity.PortfolioSize{entity.PortfolioWhale, entity.PortfolioLarge}},
		},
		{
			Name:        "Active Traders",
			Description: "Analyze highly active trading wallets",
			Filter: entity.GroupAnalysisFilter{
				TradingFrequencies: []entity.TradingFrequency{entity.TradingHigh, entity.TradingVeryHigh},
				ScoringRanges:      map[entity.ScoreType]entity.ScoreRange{entity.ScoreActivity: {Min: &activeMin}},
			},
		},
		{
			Name:        "FlutterBye Users",
			Description: "Analyze wallets collected from FlutterBye messaging",
			Filter:      entity.GroupAnalysisFilter{SourcePlatforms: []entity.DataSource{entity.DataSourceFlutterbye}},
		},
		{
			Name:        "Pool Pal Customers",
			Description: "Analyze wallets captured from Pool Pal customers",
			Filter:      entity.GroupAnalysisFilter{SourcePlatforms: []entity.DataSource{entity.DataSourcePoolPal}},
		},
		{
			Name:        "New Wallets (Last 30 Days)",
			Description: "Analyze recently collected wallets",
			Filter:      entity.GroupAnalysisFilter{DateRanges: &entity.DateRange{CreatedWithinDays: newWalletWindowInDays}},
		},
		{
			Name:        "High Engagement Wallets",
			Description: "Analyze wallets with strong engagement scores",
			Filter: entity.GroupAnalysisFilter{
				ScoringRanges: map[entity.ScoreType]entity.ScoreRange{entity.ScoreEngagement: {Min: &engagementMin}},
			},
		},
	}
}

// filterProfiles ANDs across dimensions and ORs within list values
func filterProfiles(profiles []*entity.AddressProfile, f *entity.GroupAnalysisFilter, now time.Time) []*entity.AddressProfile {
	out := make([]*entity.AddressProfile, 0, len(profiles))
	for _, p := range profiles {
		if matchesFilter(p, f, now) {
			out = append(out, p)
		}
	}
	return out
}

func matchesFilter(p *entity.AddressProfile, f *entity.GroupAnalysisFilter, now time.Time) bool {
	if len(f.RiskLevels) > 0 && !slices.Contains(f.RiskLevels, p.RiskAssessment) {
		return false
	}
	if len(f.MarketingSegments) > 0 && !slices.Contains(f.MarketingSegments, p.CustomerSegment) {
		return false
	}
	if len(f.SourcePlatforms) > 0 && !slices.Contains(f.SourcePlatforms, p.DataSource) {
		return false
	}
	if len(f.PortfolioSizes) > 0 && !slices.Contains(f.PortfolioSizes, domain_service.PortfolioSizeOf(p)) {
		return false
	}
	if len(f.TradingFrequencies) > 0 && !slices.Contains(f.TradingFrequencies, domain_service.TradingFrequencyOf(p)) {
		return false
	}
	for scoreType, r := range f.ScoringRanges {
		v, ok := p.Score(scoreType)
		if !ok || !r.Contains(v) {
			return false
		}
	}
	if d := f.DateRanges; d != nil {
		if d.CreatedAfter != nil && p.FirstSeen.Before(*d.CreatedAfter) {
			return false
		}
		if d.CreatedBefore != nil && p.FirstSeen.After(*d.CreatedBefore) {
			return false
		}
		if d.LastAnalyzedAfter != nil && p.LastAnalyzed.Before(*d.LastAnalyzedAfter) {
			return false
		}
		if d.CreatedWithinDays > 0 && p.FirstSeen.Before(now.AddDate(0, 0, -d.CreatedWithinDays)) {
			return false
		}
	}
	return true
}
