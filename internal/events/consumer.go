package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/husainf4l/ravoxai/internal/calls"
)

// Applier drives lifecycle transitions from consumed events.
// Implemented by calls.Service.
type Applier interface {
	Transition(ctx context.Context, callID string, req calls.TransitionRequest) (calls.CallRecord, error)
	GetByRoomName(ctx context.Context, roomName string) (calls.CallRecord, error)
}

// Consumer reads the lifecycle stream with a consumer group and applies each
// event through the controller. A single consumer reads the stream
// sequentially, which preserves per-call arrival order.
type Consumer struct {
	rdb     *redis.Client
	stream  string
	group   string
	name    string
	applier Applier
	log     *slog.Logger

	block time.Duration
}

func NewConsumer(rdb *redis.Client, stream, group, name string, applier Applier, log *slog.Logger) *Consumer {
	return &Consumer{
		rdb:     rdb,
		stream:  stream,
		group:   group,
		name:    name,
		applier: applier,
		log:     log,
		block:   2 * time.Second,
	}
}

// Run consumes until ctx is canceled. Undeliverable events (unknown call,
// invalid transition, malformed payloads) are acknowledged and logged rather
// than retried: redelivery cannot fix them and would stall the stream.
// Transient failures are left pending and picked up again on the next start.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.log.Info("lifecycle consumer started", "stream", c.stream, "group", c.group, "consumer", c.name)

	if err := c.drainPending(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    16,
			Block:    c.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("lifecycle stream read failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		c.consume(ctx, streams)
	}
}

// drainPending re-applies events delivered but not acknowledged before the
// last shutdown. It stops once a pass acknowledges nothing, leaving whatever
// is still failing for the next restart.
func (c *Consumer) drainPending(ctx context.Context) error {
	for {
		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, "0"},
			Count:    16,
			Block:    -1, // history reads must not block
		}).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		pending, acked := c.consume(ctx, streams)
		if pending == 0 || acked == 0 {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, streams []redis.XStream) (seen, acked int) {
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			seen++
			if !c.handle(ctx, msg) {
				continue
			}
			if err := c.rdb.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
				c.log.Error("ack failed", "id", msg.ID, "err", err)
				continue
			}
			acked++
		}
	}
	return seen, acked
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// handle applies one message and reports whether it should be acknowledged.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) bool {
	ev, err := decodeEvent(msg.Values)
	if err != nil {
		c.log.Warn("dropping malformed lifecycle event", "id", msg.ID, "err", err)
		return true
	}
	if err := Apply(ctx, c.applier, ev); err != nil {
		switch {
		case errors.Is(err, calls.ErrNotFound):
			c.log.Warn("lifecycle event for unknown call", "id", msg.ID, "call_id", ev.CallID, "room", ev.RoomName)
		case errors.Is(err, calls.ErrInvalidTransition), errors.Is(err, calls.ErrValidation):
			c.log.Warn("lifecycle event out of order", "id", msg.ID, "call_id", ev.CallID, "status", ev.Status, "err", err)
		default:
			// Likely transient (store or redis down); leave the entry
			// pending so a restart redelivers it.
			c.log.Error("lifecycle event apply failed", "id", msg.ID, "call_id", ev.CallID, "err", err)
			return false
		}
	}
	return true
}

// Apply resolves the event's call (by id, falling back to the room name) and
// drives the transition.
func Apply(ctx context.Context, applier Applier, ev Event) error {
	callID := ev.CallID
	if callID == "" {
		rec, err := applier.GetByRoomName(ctx, ev.RoomName)
		if err != nil {
			return err
		}
		callID = rec.CallID
	}
	_, err := applier.Transition(ctx, callID, calls.TransitionRequest{
		Status: ev.Status,
		At:     ev.OccurredAt,
		Reason: ev.Reason,
		Source: calls.SourceWebhook,
	})
	return err
}
