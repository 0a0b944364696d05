package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/domain/repository"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const neo4jTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Neo4JProfileRepository stores profiles as (:AddressProfile) nodes. Network
// connections become [:CONNECTED_TO] relationships to (:Address) nodes; list
// fields are kept as JSON strings.
type Neo4JProfileRepository struct {
	client *Neo4JClient
	locks  *addressLocks
	logger *logger.Logger
}

// NewNeo4JProfileRepository creates a new Neo4J profile repository
func NewNeo4JProfileRepository(client *Neo4JClient, logger *logger.Logger) *Neo4JProfileRepository {
	return &Neo4JProfileRepository{
		client: client,
		locks:  newAddressLocks(),
		logger: logger.WithComponent("neo4j-profile-repo"),
	}
}

var _ repository.ProfileRepository = (*Neo4JProfileRepository)(nil)

const profileReturn = `
	OPTIONAL MATCH (p)-[r:CONNECTED_TO]->(n:Address)
	WITH p, r, n ORDER BY r.position
	WITH p, collect(n.address) AS connections
`

// Get retrieves a profile by address, or nil if absent
func (r *Neo4JProfileRepository) Get(ctx context.Context, address string) (*entity.AddressProfile, error) {
	query := `MATCH (p:AddressProfile {address: $address}) WHERE p.first_seen IS NOT NULL` +
		profileReturn + `RETURN p, connections`

	profiles, err := r.read(ctx, query, map[string]any{"address": address})
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return profiles[0], nil
}

// Mutate runs read-modify-write in one transaction. The initial MERGE takes a
// write lock on the node so concurrent writers in other processes serialize.
func (r *Neo4JProfileRepository) Mutate(ctx context.Context, address string, fn repository.MutateFunc) (*entity.AddressProfile, error) {
	unlock := r.locks.lock(address)
	defer unlock()

	session := r.client.NewSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		lockQuery := `
			MERGE (p:AddressProfile {address: $address})
			SET p.version = coalesce(p.version, 0) + 1
			WITH p` + profileReturn + `RETURN p, connections`

		res, err := tx.Run(ctx, lockQuery, map[string]any{"address": address})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		profile, created, err := profileFromRecord(record)
		if err != nil {
			return nil, err
		}
		if created {
			profile = entity.NewAddressProfile(address, time.Now())
		}

		if err := fn(profile, created); err != nil {
			return nil, err
		}

		params, err := profileParams(profile)
		if err != nil {
			return nil, err
		}
		writeQuery := `
			MATCH (p:AddressProfile {address: $address})
			SET p += $props,
				p.first_seen = datetime($first_seen),
				p.last_seen = datetime($last_seen),
				p.last_analyzed = datetime($last_analyzed)
			WITH p
			UNWIND $connections AS c
			MERGE (n:Address {address: c.address})
			MERGE (p)-[rel:CONNECTED_TO]->(n)
			SET rel.position = c.position
		`
		if _, err := tx.Run(ctx, writeQuery, params); err != nil {
			return nil, err
		}
		return profile, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mutate profile %s: %w", address, err)
	}

	return result.(*entity.AddressProfile), nil
}

// All returns every stored profile
func (r *Neo4JProfileRepository) All(ctx context.Context) ([]*entity.AddressProfile, error) {
	query := `MATCH (p:AddressProfile) WHERE p.first_seen IS NOT NULL` +
		profileReturn + `RETURN p, connections ORDER BY p.address`

	profiles, err := r.read(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// TopByValue retrieves the highest activity+engagement profiles
func (r *Neo4JProfileRepository) TopByValue(ctx context.Context, limit int) ([]*entity.AddressProfile, error) {
	query := `MATCH (p:AddressProfile) WHERE p.first_seen IS NOT NULL` +
		profileReturn + `
		RETURN p, connections
		ORDER BY p.activity_score + p.engagement_score DESC, p.last_seen DESC, p.address
		LIMIT $limit`

	profiles, err := r.read(ctx, query, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to get top profiles: %w", err)
	}
	return profiles, nil
}

// BySegment retrieves profiles in a customer segment
func (r *Neo4JProfileRepository) BySegment(ctx context.Context, segment string) ([]*entity.AddressProfile, error) {
	query := `MATCH (p:AddressProfile {customer_segment: $segment}) WHERE p.first_seen IS NOT NULL` +
		profileReturn + `RETURN p, connections ORDER BY p.address`

	profiles, err := r.read(ctx, query, map[string]any{"segment": segment})
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles by segment: %w", err)
	}
	return profiles, nil
}

func (r *Neo4JProfileRepository) read(ctx context.Context, query string, params map[string]any) ([]*entity.AddressProfile, error) {
	session := r.client.NewSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		profiles := make([]*entity.AddressProfile, 0, len(records))
		for _, record := range records {
			profile, _, err := profileFromRecord(record)
			if err != nil {
				r.logger.Warn("Skipping unreadable profile node", zap.Error(err))
				continue
			}
			profiles = append(profiles, profile)
		}
		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*entity.AddressProfile), nil
}

// profileFromRecord decodes a (p, connections) row. created is true for a
// node that has never been written, which has no first_seen.
func profileFromRecord(record *neo4j.Record) (*entity.AddressProfile, bool, error) {
	raw, ok := record.Get("p")
	if !ok {
		return nil, false, fmt.Errorf("record has no profile node")
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return nil, false, fmt.Errorf("unexpected profile value %T", raw)
	}
	props := node.Props

	if _, ok := props["first_seen"]; !ok {
		return nil, true, nil
	}

	p := &entity.AddressProfile{
		Address:         propString(props, "address"),
		FirstSeen:       propTime(props, "first_seen"),
		LastSeen:        propTime(props, "last_seen"),
		ActivityScore:   propInt(props, "activity_score"),
		EngagementScore: propInt(props, "engagement_score"),
		LoyaltyScore:    propInt(props, "loyalty_score"),
		ViralPotential:  propInt(props, "viral_potential"),
		InfluenceScore:  propInt(props, "influence_score"),
		RiskAssessment:  entity.RiskLevel(propString(props, "risk_assessment")),
		ValueTier:       entity.ValueTier(propString(props, "value_tier")),
		ChurnRisk:       propFloat(props, "churn_risk"),
		CustomerSegment: propString(props, "customer_segment"),
		DataSource:      entity.DataSource(propString(props, "data_source")),
		ConfidenceLevel: propFloat(props, "confidence_level"),
		LastAnalyzed:    propTime(props, "last_analyzed"),
	}

	jsonFields := []struct {
		key string
		dst any
	}{
		{"communication_history", &p.CommunicationHistory},
		{"transaction_patterns", &p.TransactionPatterns},
		{"preferred_channels", &p.PreferredChannels},
		{"optimal_contact_times", &p.OptimalContactTimes},
		{"business_context", &p.BusinessContext},
	}
	for _, f := range jsonFields {
		s := propString(props, f.key)
		if s == "" {
			continue
		}
		if err := json.Unmarshal([]byte(s), f.dst); err != nil {
			return nil, false, fmt.Errorf("decode %s for %s: %w", f.key, p.Address, err)
		}
	}

	p.NetworkConnections = []string{}
	if raw, ok := record.Get("connections"); ok {
		if list, ok := raw.([]any); ok {
			for _, c := range list {
				if s, ok := c.(string); ok {
					p.NetworkConnections = append(p.NetworkConnections, s)
				}
			}
		}
	}
	if p.CommunicationHistory == nil {
		p.CommunicationHistory = []entity.CommunicationEvent{}
	}
	if p.TransactionPatterns == nil {
		p.TransactionPatterns = []entity.TransactionPattern{}
	}
	if p.PreferredChannels == nil {
		p.PreferredChannels = []entity.Channel{}
	}
	if p.OptimalContactTimes == nil {
		p.OptimalContactTimes = []string{}
	}

	return p, false, nil
}

func profileParams(p *entity.AddressProfile) (map[string]any, error) {
	encoded := make(map[string]string, 5)
	for key, v := range map[string]any{
		"communication_history": p.CommunicationHistory,
		"transaction_patterns":  p.TransactionPatterns,
		"preferred_channels":    p.PreferredChannels,
		"optimal_contact_times": p.OptimalContactTimes,
		"business_context":      p.BusinessContext,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		encoded[key] = string(b)
	}

	connections := make([]map[string]any, len(p.NetworkConnections))
	for i, c := range p.NetworkConnections {
		connections[i] = map[string]any{"address": c, "position": i}
	}

	return map[string]any{
		"address": p.Address,
		"props": map[string]any{
			"activity_score":        p.ActivityScore,
			"engagement_score":      p.EngagementScore,
			"loyalty_score":         p.LoyaltyScore,
			"viral_potential":       p.ViralPotential,
			"influence_score":       p.InfluenceScore,
			"risk_assessment":       string(p.RiskAssessment),
			"value_tier":            string(p.ValueTier),
			"churn_risk":            p.ChurnRisk,
			"customer_segment":      p.CustomerSegment,
			"data_source":           string(p.DataSource),
			"confidence_level":      p.ConfidenceLevel,
			"communication_history": encoded["communication_history"],
			"transaction_patterns":  encoded["transaction_patterns"],
			"preferred_channels":    encoded["preferred_channels"],
			"optimal_contact_times": encoded["optimal_contact_times"],
			"business_context":      encoded["business_context"],
		},
		"first_seen":    p.FirstSeen.UTC().Format(neo4jTimeLayout),
		"last_seen":     p.LastSeen.UTC().Format(neo4jTimeLayout),
		"last_analyzed": p.LastAnalyzed.UTC().Format(neo4jTimeLayout),
		"connections":   connections,
	}, nil
}

func propString(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func propInt(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func propFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func propTime(props map[string]any, key string) time.Time {
	if t, ok := props[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}
