// Package kafkainval consumes collection-update events and triggers an
// index reload, so new or withdrawn surveys show up without waiting for the
// next scheduled refresh.
package kafkainval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
)

// Event is one collection-update notification.
type Event struct {
	Op           string    `json:"op"` // "added", "updated", "removed"
	CollectionID string    `json:"collection_id"`
	At           time.Time `json:"at"`
}

// Reloader is satisfied by refresh.Refresher.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	InitialOffsetOldest bool

	// Debounce coalesces bursts of events into one reload.
	Debounce time.Duration
}

type Consumer struct {
	cfg      Config
	logger   *slog.Logger
	reloader Reloader

	// unix nanos of the last reload; ProcessOne runs concurrently, one
	// goroutine per claimed partition
	lastReload atomic.Int64
}

func New(cfg Config, logger *slog.Logger, reloader Reloader) *Consumer {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 5 * time.Second
	}
	return &Consumer{cfg: cfg, logger: logger, reloader: reloader}
}

// Start blocks consuming events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.reloader == nil {
		return errors.New("kafkainval: missing reloader")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("collection update consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collection update consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single event message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	last := c.lastReload.Load()
	now := time.Now()
	if now.Sub(time.Unix(0, last)) < c.cfg.Debounce ||
		!c.lastReload.CompareAndSwap(last, now.UnixNano()) {
		c.logger.Debug("collection update coalesced",
			"op", ev.Op, "collection", ev.CollectionID)
		return nil
	}

	c.logger.Info("collection update received, reloading index",
		"op", ev.Op, "collection", ev.CollectionID)
	if err := c.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("reload on event: %w", err)
	}
	return nil
}

type groupHandler struct {
	process func(ctx context.Context, msg *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.process(sess.Context(), msg); err != nil {
			// log and move on; a bad event must not wedge the partition
			slog.Error("collection update event failed", "err", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
