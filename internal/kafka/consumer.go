package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/mafia-engine/internal/config"
	"github.com/mafia-engine/internal/domain"
)

// ActionMessage is the wire format for player actions ingested from Kafka
type ActionMessage struct {
	Kind      string `json:"kind"` // queue_join, queue_leave, game_action
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id,omitempty"`

	// queue_join fields
	SkillRange        int                      `json:"skill_range,omitempty"`
	MaxWaitSeconds    int                      `json:"max_wait_seconds,omitempty"`
	Region            string                   `json:"region,omitempty"`
	ConnectionQuality domain.ConnectionQuality `json:"connection_quality,omitempty"`
	LatencyMs         int                      `json:"latency_ms,omitempty"`

	// game_action fields
	Action   domain.ActionType `json:"action,omitempty"`
	TargetID string            `json:"target_id,omitempty"`
}

// Message kinds
const (
	KindQueueJoin  = "queue_join"
	KindQueueLeave = "queue_leave"
	KindGameAction = "game_action"
)

// ActionHandler processes ingested player actions
type ActionHandler interface {
	JoinQueue(ctx context.Context, req domain.JoinQueueRequest) (*domain.QueueStatus, error)
	LeaveQueue(ctx context.Context, playerID string) bool
	ApplyAction(ctx context.Context, sessionID string, action domain.Action) (*domain.SessionSnapshot, error)
}

// Consumer consumes player action messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       ActionHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler ActionHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.ActionsTopic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.ActionsTopic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]ActionMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for _, msg := range batch {
			h.consumer.dispatch(ctx, msg)
		}
		h.consumer.logger.Debug("processed batch", "batch_size", len(batch))

		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			var action ActionMessage
			if err := json.Unmarshal(message.Value, &action); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			// Validate message
			if action.PlayerID == "" || action.Kind == "" {
				h.consumer.logger.Warn("invalid action message",
					"player_id", action.PlayerID,
					"kind", action.Kind,
				)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, action)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// dispatch routes one ingested message to the handler. Rejections are
// logged, never retried here; retry policy belongs to the producer side.
func (c *Consumer) dispatch(ctx context.Context, msg ActionMessage) {
	switch msg.Kind {
	case KindQueueJoin:
		_, err := c.handler.JoinQueue(ctx, domain.JoinQueueRequest{
			PlayerID:          msg.PlayerID,
			SkillRange:        msg.SkillRange,
			MaxWaitSeconds:    msg.MaxWaitSeconds,
			Region:            msg.Region,
			ConnectionQuality: msg.ConnectionQuality,
			LatencyMs:         msg.LatencyMs,
		})
		if err != nil {
			c.logger.Warn("queue join rejected", "player_id", msg.PlayerID, "error", err)
		}

	case KindQueueLeave:
		c.handler.LeaveQueue(ctx, msg.PlayerID)

	case KindGameAction:
		if msg.SessionID == "" {
			c.logger.Warn("game action without session id", "player_id", msg.PlayerID)
			return
		}
		_, err := c.handler.ApplyAction(ctx, msg.SessionID, domain.Action{
			Type:     msg.Action,
			PlayerID: msg.PlayerID,
			TargetID: msg.TargetID,
		})
		if err != nil {
			c.logger.Warn("game action rejected",
				"session_id", msg.SessionID,
				"player_id", msg.PlayerID,
				"error", err,
			)
		}

	default:
		c.logger.Warn("unknown action kind", "kind", msg.Kind)
	}
}
