package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	fetchBatchSize = 10
	fetchMaxWait   = 5 * time.Second
)

// NATSConsumer receives messaging-platform messages from NATS
type NATSConsumer struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	sub       *nats.Subscription
	config    *config.NATSConfig
	logger    *logger.Logger
	msgChan   chan *entity.Message
	isRunning atomic.Bool
	fetchWG   sync.WaitGroup
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(cfg *config.NATSConfig, logger *logger.Logger) *NATSConsumer {
	return &NATSConsumer{
		config:  cfg,
		logger:  logger.WithComponent("nats-consumer"),
		msgChan: make(chan *entity.Message, cfg.MaxPendingMessages),
	}
}

func (n *NATSConsumer) subject() string {
	return fmt.Sprintf("%s.messages", n.config.SubjectPrefix)
}

// Connect connects to NATS server and sets up consumer
func (n *NATSConsumer) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	n.logger.Info("Connecting to NATS server", zap.String("url", n.config.URL))

	opts := []nats.Option{
		nats.Name("address-intelligence"),
		nats.Timeout(n.config.ConnectTimeout),
		nats.ReconnectWait(n.config.ReconnectDelay),
		nats.MaxReconnects(n.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.logger.Error("Failed to connect to NATS", zap.Error(err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.conn = conn

	// Try JetStream first, if not available fall back to core NATS
	js, err := conn.JetStream()
	if err != nil {
		n.logger.Warn("JetStream not available, using core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}

	n.js = js
	return n.setupJetStreamSubscription()
}

func (n *NATSConsumer) setupJetStreamSubscription() error {
	subject := n.subject()
	durable := n.config.DurableName

	n.logger.Info("Setting up JetStream subscription",
		zap.String("subject", subject),
		zap.String("consumer", durable),
		zap.String("stream", n.config.StreamName))

	sub, err := n.js.PullSubscribe(subject, durable, nats.BindStream(n.config.StreamName))
	if err != nil {
		n.logger.Warn("Failed to create pull subscription, falling back to core NATS", zap.Error(err))
		return n.setupCoreNATSSubscription()
	}

	n.sub = sub
	n.isRunning.Store(true)

	n.fetchWG.Add(1)
	go n.processJetStreamMessages()

	n.logger.Info("Successfully connected to NATS JetStream",
		zap.String("subject", subject),
		zap.String("consumer", durable))

	return nil
}

// processJetStreamMessages pulls batches until Disconnect
func (n *NATSConsumer) processJetStreamMessages() {
	defer n.fetchWG.Done()
	n.logger.Info("Starting JetStream message processing")

	for n.isRunning.Load() {
		msgs, err := n.sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if !n.isRunning.Load() {
				break
			}
			n.logger.Error("Failed to fetch messages", zap.Error(err))
			continue
		}

		n.logger.Debug("Fetched messages from JetStream", zap.Int("count", len(msgs)))

		for _, msg := range msgs {
			n.handleMessage(msg)
		}
	}

	n.logger.Info("Stopped JetStream message processing")
}

func (n *NATSConsumer) setupCoreNATSSubscription() error {
	subject := n.subject()
	queueGroup := n.config.ConsumerGroup

	n.logger.Info("Setting up core NATS subscription",
		zap.String("subject", subject),
		zap.String("queue_group", queueGroup))

	sub, err := n.conn.QueueSubscribe(subject, queueGroup, n.handleMessage)
	if err != nil {
		n.logger.Error("Failed to subscribe to subject", zap.Error(err))
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.sub = sub
	n.isRunning.Store(true)

	n.logger.Info("Successfully connected to core NATS",
		zap.String("subject", subject),
		zap.String("queue_group", queueGroup))

	return nil
}

func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	var m entity.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		n.logger.Error("Failed to unmarshal message", zap.Error(err))
		// Redelivery cannot fix a bad payload
		if msg.Reply != "" {
			_ = msg.Term()
		}
		return
	}

	n.logger.Debug("Received message",
		zap.String("id", m.ID),
		zap.String("channel", string(m.Channel)),
		zap.String("status", string(m.Status)))

	select {
	case n.msgChan <- &m:
		if msg.Reply != "" {
			_ = msg.Ack()
		}
	default:
		n.logger.Warn("Message channel is full, dropping message", zap.String("id", m.ID))
		if msg.Reply != "" {
			_ = msg.Nak()
		}
	}
}

// Disconnect stops fetching and closes the connection. The message channel
// stays open; readers stop on their own context.
func (n *NATSConsumer) Disconnect() error {
	n.isRunning.Store(false)

	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			n.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	n.fetchWG.Wait()
	n.sub = nil

	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSConsumer) IsConnected() bool {
	return n.isRunning.Load() && n.conn != nil && n.conn.IsConnected()
}

// Messages returns the decoded message stream
func (n *NATSConsumer) Messages() <-chan *entity.Message {
	return n.msgChan
}
