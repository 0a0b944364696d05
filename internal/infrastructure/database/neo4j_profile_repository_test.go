package database

import (
	"testing"
	"time"

	"address-intelligence/internal/domain/entity"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func recordFor(props map[string]any, connections []any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"p", "connections"},
		Values: []any{neo4j.Node{Labels: []string{"AddressProfile"}, Props: props}, connections},
	}
}

func TestProfileFromRecordUnwrittenNode(t *testing.T) {
	p, created, err := profileFromRecord(recordFor(map[string]any{"address": testAddress, "version": int64(1)}, []any{}))
	if err != nil {
		t.Fatalf("profileFromRecord: %v", err)
	}
	if !created || p != nil {
		t.Fatalf("got %+v created=%v, want nil created=true", p, created)
	}
}

func TestProfileParamsRoundTrip(t *testing.T) {
	seen := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rt := 45.0
	in := entity.NewAddressProfile(testAddress, seen)
	in.EngagementScore = 72
	in.ChurnRisk = 0.25
	in.ValueTier = entity.TierGold
	in.CommunicationHistory = []entity.CommunicationEvent{{
		Timestamp:    seen,
		Channel:      entity.ChannelSMS,
		Direction:    entity.DirectionOutbound,
		Engagement:   entity.EngagementResponded,
		ResponseTime: &rt,
	}}
	in.PreferredChannels = []entity.Channel{entity.ChannelSMS}
	in.BusinessContext = &entity.BusinessContext{PoolType: "chlorine"}
	in.NetworkConnections = []string{"peer-b", "peer-a"}

	params, err := profileParams(in)
	if err != nil {
		t.Fatalf("profileParams: %v", err)
	}
	if params["first_seen"] != "2024-03-01T09:30:00.000Z" {
		t.Errorf("first_seen = %v", params["first_seen"])
	}
	conns := params["connections"].([]map[string]any)
	if len(conns) != 2 || conns[1]["address"] != "peer-a" || conns[1]["position"] != 1 {
		t.Errorf("connections = %v", conns)
	}

	// Rebuild the node the way the driver returns it: integers as int64 and
	// datetimes as time.Time
	props := map[string]any{"address": testAddress, "first_seen": seen, "last_seen": seen, "last_analyzed": seen}
	for k, v := range params["props"].(map[string]any) {
		if i, ok := v.(int); ok {
			v = int64(i)
		}
		props[k] = v
	}

	out, created, err := profileFromRecord(recordFor(props, []any{"peer-b", "peer-a"}))
	if err != nil {
		t.Fatalf("profileFromRecord: %v", err)
	}
	if created {
		t.Fatal("stored node reported as created")
	}
	if out.EngagementScore != 72 || out.ChurnRisk != 0.25 || out.ValueTier != entity.TierGold {
		t.Errorf("scalars = %d %v %s", out.EngagementScore, out.ChurnRisk, out.ValueTier)
	}
	if !out.FirstSeen.Equal(seen) {
		t.Errorf("FirstSeen = %v", out.FirstSeen)
	}
	if len(out.CommunicationHistory) != 1 || *out.CommunicationHistory[0].ResponseTime != 45 {
		t.Errorf("history = %+v", out.CommunicationHistory)
	}
	if out.BusinessContext == nil || out.BusinessContext.PoolType != "chlorine" {
		t.Errorf("BusinessContext = %+v", out.BusinessContext)
	}
	if len(out.NetworkConnections) != 2 || out.NetworkConnections[0] != "peer-b" {
		t.Errorf("NetworkConnections = %v", out.NetworkConnections)
	}
}
