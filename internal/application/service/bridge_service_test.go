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
	"address-intelligence/internal/infrastructure/logger"
)

type recordingHook struct {
	mu     sync.Mutex
	events []entity.TriggerEvent
}

func (h *recordingHook) Fire(_ context.Context, event entity.TriggerEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHook) kinds() []entity.TriggerKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]entity.TriggerKind, len(h.events))
	for i, e := range h.events {
		out[i] = e.Kind
	}
	return out
}

type failingHook struct{}

func (failingHook) Fire(context.Context, entity.TriggerEvent) error {
	return errors.New("webhook unreachable")
}

type panickingHook struct{}

func (panickingHook) Fire(context.Context, entity.TriggerEvent) error {
	panic("hook bug")
}

func newTestBridge(hooks ...domain_service.ResponseHook) (*BridgeService, *IntelligenceService, *recordingActivity) {
	intel, _, activity := newTestIntelligence()
	extractor := domain_service.NewAddressExtractor(blockchain.NewAddressCodec(), nil, nil, 0, logger.NewNop())
	bridge := NewBridgeService(extractor, intel, activity, hooks, 4, logger.NewNop())
	bridge.now = func() time.Time { return testClock }
	return bridge, intel, activity
}

func dailyWhaleTransactions() []entity.TransactionData {
	txs := make([]entity.TransactionData, 5)
	for i := range txs {
		txs[i] = entity.TransactionData{Type: "swap", Value: 200_000, Timestamp: testClock.Add(time.Duration(i) * time.Hour)}
	}
	return txs
}

func TestHandleMessageTriggers(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, intel *IntelligenceService)
		status entity.MessageStatus
		want   entity.TriggerKind
	}{
		{
			name: "diamond responder gets vip treatment",
			setup: func(t *testing.T, intel *IntelligenceService) {
				ctx := context.Background()
				if _, err := intel.Upsert(ctx, solAddress, ProfilePatch{LoyaltyScore: intPtr(100)}); err != nil {
					t.Fatal(err)
				}
				if _, err := intel.IngestTransactions(ctx, solAddress, dailyWhaleTransactions()); err != nil {
					t.Fatal(err)
				}
			},
			status: entity.StatusResponded,
			want:   entity.TriggerVIP,
		},
		{
			name: "high churn with no engagement needs retention",
			setup: func(t *testing.T, intel *IntelligenceService) {
				if _, err := intel.Upsert(context.Background(), solAddress, ProfilePatch{ChurnRisk: floatPtr(0.9)}); err != nil {
					t.Fatal(err)
				}
			},
			status: entity.StatusSent,
			want:   entity.TriggerRetention,
		},
		{
			name: "well connected influencer",
			setup: func(t *testing.T, intel *IntelligenceService) {
				ctx := context.Background()
				if _, err := intel.Upsert(ctx, solAddress, ProfilePatch{InfluenceScore: intPtr(100)}); err != nil {
					t.Fatal(err)
				}
				peers := make([]string, 64)
				for i := range peers {
					peers[i] = ethPeer(i)
				}
				if _, err := intel.Connect(ctx, solAddress, peers...); err != nil {
					t.Fatal(err)
				}
			},
			status: entity.StatusResponded,
			want:   entity.TriggerInfluencer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := &recordingHook{}
			bridge, intel, _ := newTestBridge(hook)
			tt.setup(t, intel)

			outcome := bridge.HandleMessage(context.Background(), &entity.Message{
				ID:        "msg-1",
				Recipient: solAddress,
				Channel:   entity.ChannelSMS,
				Status:    tt.status,
			})
			bridge.Drain()

			if len(outcome.Triggers) != 1 || outcome.Triggers[0].Kind != tt.want {
				t.Fatalf("Triggers = %+v, want one %s", outcome.Triggers, tt.want)
			}
			if outcome.Triggers[0].MessageID != "msg-1" || outcome.Triggers[0].Address != solAddress {
				t.Errorf("trigger not attributed: %+v", outcome.Triggers[0])
			}
			if got := hook.kinds(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("hook received %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestHandleMessageSurvivesBrokenHooks(t *testing.T) {
	hook := &recordingHook{}
	bridge, intel, _ := newTestBridge(failingHook{}, panickingHook{}, hook)
	intel.Upsert(context.Background(), solAddress, ProfilePatch{ChurnRisk: floatPtr(0.95)})

	outcome := bridge.HandleMessage(context.Background(), &entity.Message{
		ID:        "msg-2",
		Recipient: solAddress,
		Channel:   entity.ChannelEmail,
		Status:    entity.StatusSent,
	})
	bridge.Drain()

	if len(outcome.Profiles) != 1 {
		t.Fatalf("Profiles = %d, want 1", len(outcome.Profiles))
	}
	if got := hook.kinds(); len(got) != 1 || got[0] != entity.TriggerRetention {
		t.Errorf("healthy hook received %v", got)
	}
}

func TestHandleMessageDeliversTriggersInOrder(t *testing.T) {
	hook := &recordingHook{}
	bridge, intel, _ := newTestBridge(hook)
	ctx := context.Background()
	intel.Upsert(ctx, solAddress, ProfilePatch{LoyaltyScore: intPtr(100), InfluenceScore: intPtr(100)})
	intel.IngestTransactions(ctx, solAddress, dailyWhaleTransactions())
	peers := make([]string, 64)
	for i := range peers {
		peers[i] = ethPeer(i)
	}
	intel.Connect(ctx, solAddress, peers...)

	for i := 0; i < 5; i++ {
		bridge.HandleMessage(ctx, &entity.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Recipient: solAddress,
			Channel:   entity.ChannelSMS,
			Status:    entity.StatusResponded,
		})
		bridge.Drain()

		got := hook.kinds()[2*i:]
		if len(got) != 2 || got[0] != entity.TriggerVIP || got[1] != entity.TriggerInfluencer {
			t.Fatalf("message %d delivered %v, want [vip influencer]", i, got)
		}
	}
}

func TestHandleMessageRejectsUnknownChannel(t *testing.T) {
	hook := &recordingHook{}
	bridge, intel, activity := newTestBridge(hook)

	outcome := bridge.HandleMessage(context.Background(), &entity.Message{
		ID:        "msg-fax",
		Recipient: solAddress,
		Channel:   "fax",
		Status:    entity.StatusResponded,
	})
	bridge.Drain()

	if len(outcome.Profiles) != 0 || len(outcome.Triggers) != 0 {
		t.Fatalf("outcome = %+v, want nothing ingested", outcome)
	}
	if p, _ := intel.GetProfile(context.Background(), solAddress); p != nil {
		t.Errorf("unknown channel stored a profile: %+v", p)
	}
	if activity.count(entity.ActionBridgeMessage) != 0 || len(hook.kinds()) != 0 {
		t.Errorf("rejected message still audited or fired hooks")
	}
}

func TestHandleMessageWithoutAddresses(t *testing.T) {
	hook := &recordingHook{}
	bridge, _, activity := newTestBridge(hook)

	outcome := bridge.HandleMessage(context.Background(), &entity.Message{
		ID:        "msg-3",
		Recipient: "+15551234567",
		Content:   "see you soon",
		Channel:   entity.ChannelSMS,
	})
	bridge.Drain()

	if len(outcome.Extraction.Addresses) != 0 || len(outcome.Profiles) != 0 || len(outcome.Triggers) != 0 {
		t.Fatalf("outcome = %+v, want empty", outcome)
	}
	if outcome.Extraction.Method != entity.ExtractionInferred || outcome.Extraction.Confidence != 0 {
		t.Errorf("extraction = %s/%v", outcome.Extraction.Method, outcome.Extraction.Confidence)
	}
	if got := activity.count(entity.ActionBridgeMessage); got != 1 {
		t.Errorf("bridge activity events = %d, want 1", got)
	}
}

func TestHandleMessageIngestsEveryAddress(t *testing.T) {
	bridge, intel, _ := newTestBridge()

	outcome := bridge.HandleMessage(context.Background(), &entity.Message{
		ID:        "msg-4",
		Recipient: ethAddress,
		Content:   "forwarding to " + solAddress,
		Channel:   entity.ChannelBlockchain,
		Campaign:  "airdrop",
		Status:    entity.StatusRead,
	})

	if outcome.Extraction.Method != entity.ExtractionDirect || len(outcome.Profiles) != 2 {
		t.Fatalf("method=%s profiles=%d", outcome.Extraction.Method, len(outcome.Profiles))
	}
	for _, addr := range []string{ethAddress, solAddress} {
		p, _ := intel.GetProfile(context.Background(), addr)
		if p == nil || len(p.CommunicationHistory) != 1 {
			t.Fatalf("profile %s not ingested: %+v", addr, p)
		}
		ev := p.CommunicationHistory[0]
		if ev.Engagement != entity.EngagementClicked || ev.MessageType != "airdrop" {
			t.Errorf("event for %s = %+v", addr, ev)
		}
	}
}

func TestOptimizeCampaign(t *testing.T) {
	bridge, intel, _ := newTestBridge()
	ctx := context.Background()
	intel.Upsert(ctx, solAddress, ProfilePatch{LoyaltyScore: intPtr(100)})
	intel.IngestTransactions(ctx, solAddress, dailyWhaleTransactions())
	intel.Ingest(ctx, solAddress, CommunicationInput{Channel: entity.ChannelEmail, Engagement: entity.EngagementResponded})

	plan, err := bridge.OptimizeCampaign(ctx, []string{ethAddress, solAddress}, "promotion")
	if err != nil {
		t.Fatalf("OptimizeCampaign: %v", err)
	}
	if len(plan.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(plan.Messages))
	}

	best, unknown := plan.Messages[0], plan.Messages[1]
	if best.Address != solAddress || best.ExpectedEngagement != 100 || best.RecommendedChannel != entity.ChannelEmail {
		t.Errorf("best = %+v", best)
	}
	if best.PersonalizedContent != entity.MessageTemplate(entity.MessagePromotion, entity.TierDiamond) {
		t.Errorf("best content = %q", best.PersonalizedContent)
	}
	if unknown.ExpectedEngagement != 10 || unknown.RecommendedChannel != entity.ChannelSMS ||
		unknown.OptimalSendTime != "10:00" || unknown.PersonalizedContent != entity.GenericGreeting {
		t.Errorf("unknown = %+v", unknown)
	}
	want := entity.CampaignInsights{TotalReach: 2, ExpectedResponse: 55, HighValueTargets: 1}
	if plan.Insights != want {
		t.Errorf("Insights = %+v, want %+v", plan.Insights, want)
	}

	plan, _ = bridge.OptimizeCampaign(ctx, []string{solAddress}, "flash_sale")
	if plan.Messages[0].PersonalizedContent != entity.GenericOffer {
		t.Errorf("unknown campaign type content = %q", plan.Messages[0].PersonalizedContent)
	}
}

func TestBulkAnalyze(t *testing.T) {
	bridge, intel, _ := newTestBridge()
	ctx := context.Background()
	intel.Upsert(ctx, solAddress, ProfilePatch{ChurnRisk: floatPtr(0.9)})

	results, err := bridge.BulkAnalyze(ctx, []string{ethAddress, solAddress})
	if err != nil {
		t.Fatalf("BulkAnalyze: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Profile != nil || results[0].Recommendations[0] != "No data available - start collecting intelligence" {
		t.Errorf("unknown result = %+v", results[0])
	}
	want := []string{
		"Low engagement - try different communication channels",
		"High churn risk - immediate retention campaign needed",
	}
	got := results[1].Recommendations
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Recommendations = %v, want %v", got, want)
	}
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name    string
		profile *entity.AddressProfile
		want    int
	}{
		{"healthy", &entity.AddressProfile{EngagementScore: 60, ValueTier: entity.TierSilver, RiskAssessment: entity.RiskLow}, 0},
		{"vip influencer", &entity.AddressProfile{EngagementScore: 95, ValueTier: entity.TierDiamond, RiskAssessment: entity.RiskLow, ViralPotential: 90}, 2},
		{"everything wrong", &entity.AddressProfile{EngagementScore: 5, ValueTier: entity.TierBronze, RiskAssessment: entity.RiskHigh}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Recommendations(tt.profile); len(got) != tt.want {
				t.Errorf("Recommendations() = %v, want %d entries", got, tt.want)
			}
		})
	}
}

func TestBridgeReport(t *testing.T) {
	bridge, intel, _ := newTestBridge()
	intel.Upsert(context.Background(), solAddress, ProfilePatch{})

	report, err := bridge.Report(context.Background())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.TotalAddresses != 1 || len(report.MarketingOpportunities) != 4 {
		t.Fatalf("report = %+v", report)
	}
}
