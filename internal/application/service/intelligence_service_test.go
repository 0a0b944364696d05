package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"address-intelligence/internal/domain/entity"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/blockchain"
	"address-intelligence/internal/infrastructure/database"
	"address-intelligence/internal/infrastructure/logger"
)

const (
	solAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	ethAddress = "0x52908400098527886e0f7030069857d2e4169ee7"
)

var testClock = time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

type recordingActivity struct {
	mu     sync.Mutex
	events []entity.ActivityEvent
}

func (r *recordingActivity) Log(_ context.Context, event entity.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingActivity) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func newTestIntelligence() (*IntelligenceService, *database.MemoryProfileRepository, *recordingActivity) {
	repo := database.NewMemoryProfileRepository()
	activity := &recordingActivity{}
	svc := NewIntelligenceService(repo, domain_service.NewScoringEngine(0), blockchain.NewAddressCodec(), activity, logger.NewNop())
	svc.now = func() time.Time { return testClock }
	return svc, repo, activity
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// ethPeer builds a distinct lowercase Ethereum address
func ethPeer(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

func TestIngestScoresProfile(t *testing.T) {
	svc, _, activity := newTestIntelligence()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		in := CommunicationInput{Channel: entity.ChannelSMS, Timestamp: testClock.Add(time.Duration(i) * time.Minute)}
		if i < 4 {
			in.Engagement = entity.EngagementResponded
			in.ResponseTime = floatPtr(60)
		}
		if _, err := svc.Ingest(ctx, solAddress, in); err != nil {
			t.Fatalf("Ingest #%d: %v", i, err)
		}
	}

	p, err := svc.GetProfile(ctx, solAddress)
	if err != nil || p == nil {
		t.Fatalf("GetProfile = %v, %v", p, err)
	}
	if len(p.CommunicationHistory) != 5 {
		t.Fatalf("history length = %d, want 5", len(p.CommunicationHistory))
	}
	if p.EngagementScore != 86 {
		t.Errorf("EngagementScore = %d, want 86", p.EngagementScore)
	}
	if len(p.PreferredChannels) != 1 || p.PreferredChannels[0] != entity.ChannelSMS {
		t.Errorf("PreferredChannels = %v", p.PreferredChannels)
	}
	if len(p.OptimalContactTimes) != 1 || p.OptimalContactTimes[0] != "14:00" {
		t.Errorf("OptimalContactTimes = %v", p.OptimalContactTimes)
	}
	if p.RiskAssessment != entity.RiskLow || p.ValueTier != entity.TierBronze {
		t.Errorf("risk/tier = %s/%s, want low/bronze", p.RiskAssessment, p.ValueTier)
	}
	if p.CommunicationHistory[4].Direction != entity.DirectionOutbound || p.CommunicationHistory[4].MessageType != "general" {
		t.Errorf("defaults not applied: %+v", p.CommunicationHistory[4])
	}
	if got := activity.count(entity.ActionProfileUpdate); got != 5 {
		t.Errorf("activity events = %d, want 5", got)
	}
}

func TestIngestRejectsMalformedAddress(t *testing.T) {
	svc, repo, activity := newTestIntelligence()
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "not-an-address", CommunicationInput{Channel: entity.ChannelSMS})
	if !errors.Is(err, entity.ErrMalformedAddress) {
		t.Fatalf("Ingest error = %v, want ErrMalformedAddress", err)
	}
	if all, _ := repo.All(ctx); len(all) != 0 {
		t.Errorf("malformed address created %d profiles", len(all))
	}
	if len(activity.events) != 0 {
		t.Errorf("malformed address was audited")
	}
}

func TestIngestValidatesEventEnums(t *testing.T) {
	tests := []struct {
		name    string
		in      CommunicationInput
		wantErr bool
	}{
		{"defaults fill direction and engagement", CommunicationInput{Channel: entity.ChannelApp}, false},
		{"missing channel", CommunicationInput{Engagement: entity.EngagementViewed}, true},
		{"unknown channel", CommunicationInput{Channel: "fax"}, true},
		{"unknown direction", CommunicationInput{Channel: entity.ChannelSMS, Direction: "sideways"}, true},
		{"unknown engagement", CommunicationInput{Channel: entity.ChannelSMS, Engagement: "bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestIntelligence()
			ctx := context.Background()

			p, err := svc.Ingest(ctx, solAddress, tt.in)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Ingest: %v", err)
				}
				ev := p.CommunicationHistory[0]
				if ev.Direction != entity.DirectionOutbound || ev.Engagement != entity.EngagementNone {
					t.Errorf("event = %+v", ev)
				}
				return
			}
			if !errors.Is(err, entity.ErrInvalidEvent) {
				t.Fatalf("Ingest error = %v, want ErrInvalidEvent", err)
			}
			if stored, _ := repo.Get(ctx, solAddress); stored != nil {
				t.Errorf("rejected event created a profile: %+v", stored)
			}
		})
	}
}

func TestIngestJunkEngagementCannotInflateScore(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Ingest(ctx, solAddress, CommunicationInput{Channel: entity.ChannelSMS, Engagement: "bogus"})
	}
	svc.Ingest(ctx, solAddress, CommunicationInput{Channel: entity.ChannelSMS})

	p, _ := svc.GetProfile(ctx, solAddress)
	if p == nil || len(p.CommunicationHistory) != 1 {
		t.Fatalf("profile = %+v, want only the valid event", p)
	}
	// one unanswered event: no response rate and a full time score
	if p.EngagementScore != 30 {
		t.Errorf("EngagementScore = %d, want 30", p.EngagementScore)
	}
}

func TestGetProfileUnknown(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	p, err := svc.GetProfile(context.Background(), ethAddress)
	if err != nil || p != nil {
		t.Fatalf("GetProfile(unknown) = %v, %v; want nil, nil", p, err)
	}
}

func TestUpsert(t *testing.T) {
	tests := []struct {
		name    string
		patch   ProfilePatch
		wantErr bool
	}{
		{"loyalty above range", ProfilePatch{LoyaltyScore: intPtr(101)}, true},
		{"negative influence", ProfilePatch{InfluenceScore: intPtr(-1)}, true},
		{"churn above one", ProfilePatch{ChurnRisk: floatPtr(1.5)}, true},
		{"valid patch", ProfilePatch{LoyaltyScore: intPtr(90), ChurnRisk: floatPtr(0.2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestIntelligence()
			p, err := svc.Upsert(context.Background(), ethAddress, tt.patch)
			if tt.wantErr {
				if !errors.Is(err, entity.ErrInvalidPatch) {
					t.Fatalf("Upsert error = %v, want ErrInvalidPatch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			if p.LoyaltyScore != 90 || p.ChurnRisk != 0.2 {
				t.Errorf("patch not applied: loyalty=%d churn=%v", p.LoyaltyScore, p.ChurnRisk)
			}
		})
	}
}

func TestConnectSkipsSelfAndMalformedPeers(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	ctx := context.Background()

	p, err := svc.Connect(ctx, ethAddress, ethAddress, solAddress, "garbage", solAddress)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(p.NetworkConnections) != 1 || p.NetworkConnections[0] != solAddress {
		t.Fatalf("NetworkConnections = %v, want [%s]", p.NetworkConnections, solAddress)
	}

	p, _ = svc.Connect(ctx, ethAddress, solAddress)
	if len(p.NetworkConnections) != 1 {
		t.Errorf("duplicate peer added: %v", p.NetworkConnections)
	}
}

func TestCaptureBusinessContext(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	p, err := svc.CaptureBusinessContext(context.Background(), solAddress, entity.BusinessContext{PoolType: "saltwater", Location: "Austin"})
	if err != nil {
		t.Fatalf("CaptureBusinessContext: %v", err)
	}
	if p.DataSource != entity.DataSourcePoolPal || p.CustomerSegment != entity.SegmentPoolOwner {
		t.Errorf("source/segment = %s/%s", p.DataSource, p.CustomerSegment)
	}
	if p.BusinessContext == nil || p.BusinessContext.PoolType != "saltwater" {
		t.Errorf("BusinessContext = %+v", p.BusinessContext)
	}
}

func TestIngestTransactionsDrivesActivity(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	var txs []entity.TransactionData
	for i := 0; i < 5; i++ {
		txs = append(txs, entity.TransactionData{Type: "swap", Value: 200_000, Timestamp: testClock.Add(time.Duration(i) * time.Hour)})
	}

	p, err := svc.IngestTransactions(context.Background(), solAddress, txs)
	if err != nil {
		t.Fatalf("IngestTransactions: %v", err)
	}
	if len(p.TransactionPatterns) != 1 || p.TransactionPatterns[0].Frequency != entity.FrequencyDaily {
		t.Fatalf("TransactionPatterns = %+v", p.TransactionPatterns)
	}
	if p.ActivityScore != 100 {
		t.Errorf("ActivityScore = %d, want 100", p.ActivityScore)
	}
}

func TestContactTimeAndMessageDefaults(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	ctx := context.Background()

	if got, _ := svc.OptimalContactTime(ctx, ethAddress); got != "10:00" {
		t.Errorf("OptimalContactTime(unknown) = %s, want 10:00", got)
	}
	if got, _ := svc.PersonalizedMessage(ctx, ethAddress, entity.MessageWelcome); got != entity.GenericGreeting {
		t.Errorf("PersonalizedMessage(unknown) = %q", got)
	}

	svc.Upsert(ctx, ethAddress, ProfilePatch{})
	want := entity.MessageTemplate(entity.MessagePromotion, entity.TierBronze)
	if got, _ := svc.PersonalizedMessage(ctx, ethAddress, entity.MessagePromotion); got != want {
		t.Errorf("PersonalizedMessage(bronze) = %q, want %q", got, want)
	}
}

func TestReport(t *testing.T) {
	svc, _, _ := newTestIntelligence()
	ctx := context.Background()

	empty, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if empty.TotalAddresses != 0 || empty.AverageEngagement != 0 || len(empty.Insights) != 4 {
		t.Fatalf("empty report = %+v", empty)
	}

	svc.Ingest(ctx, ethAddress, CommunicationInput{Channel: entity.ChannelSMS, Engagement: entity.EngagementResponded})
	svc.Upsert(ctx, solAddress, ProfilePatch{ChurnRisk: floatPtr(0.9)})

	report, err := svc.Report(ctx)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.TotalAddresses != 2 || len(report.TopPerformers) != 2 {
		t.Fatalf("report totals = %d addresses, %d top", report.TotalAddresses, len(report.TopPerformers))
	}
	// engagement 100 for the responder and 0 for the untouched profile
	if report.AverageEngagement != 50 {
		t.Errorf("AverageEngagement = %v, want 50", report.AverageEngagement)
	}
	if report.RiskDistribution[entity.RiskHigh] != 1 {
		t.Errorf("RiskDistribution = %v", report.RiskDistribution)
	}
}
