package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/alfianlosari/arinventory/pkg/logger"
)

type modelHandler interface {
	ModelDeleted(ctx context.Context, objectName string) (Outcome, error)
}

// Consumer watches Pub/Sub for bucket OBJECT_DELETE notifications.
type Consumer struct {
	handler      modelHandler
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewConsumer(handler modelHandler, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("model handler is required")
	}
	if subscription == nil {
		return nil, errors.New("storage subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{handler: handler, subscription: subscription, logg: logg}, nil
}

// Run processes notifications until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	attrs := parseAttributes(attributes)
	logCtx := c.logg.WithFields(ctx, c.buildLogFields(messageID, attrs, nil))

	if attrs.EventType != objectDeleteEvent {
		c.logg.Debug(logCtx, "skipping non-delete event")
		return processResult{ack: true}
	}
	if attrs.OverwrittenByGeneration != "" {
		c.logg.Debug(logCtx, "skipping overwrite of live object")
		return processResult{ack: true}
	}
	if attrs.PayloadFormat != payloadFormatJSONAPI {
		c.logg.Warn(logCtx, "unsupported payload format")
		return processResult{ack: true}
	}

	payload, err := decodePayload(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	var gcs gcsPayload
	if err := json.Unmarshal(payload, &gcs); err != nil {
		fields := c.buildLogFields(messageID, attrs, nil)
		fields["payload_preview"] = previewBytes(payload, 800)
		fields["payload_len"] = len(payload)
		c.logg.Error(c.logg.WithFields(ctx, fields), "failed to unmarshal payload", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(ctx, c.buildLogFields(messageID, attrs, &gcs))
	if strings.TrimSpace(gcs.Name) == "" {
		c.logg.Error(logCtx, "payload missing object name", fmt.Errorf("empty name"))
		return processResult{ack: true}
	}

	outcome, err := c.handler.ModelDeleted(logCtx, gcs.Name)
	if err != nil {
		c.logg.Error(logCtx, "model deletion reconcile failed", err)
		if isTransient(err) {
			return processResult{nack: true}
		}
		return processResult{ack: true}
	}

	c.logg.Info(c.logg.WithField(logCtx, "outcome", string(outcome)), "processed storage deletion event")
	return processResult{ack: true}
}

func (c *Consumer) buildLogFields(messageID string, attrs gcsAttributes, payload *gcsPayload) map[string]any {
	bucket := ""
	if payload != nil {
		bucket = payload.Bucket
	}
	fields := map[string]any{
		"message_id": messageID,
		"event_type": attrs.EventType,
		"bucket":     firstNonEmpty(attrs.BucketID, bucket),
	}
	if payload != nil {
		fields["object"] = payload.Name
	}
	return fields
}

// isTransient reports failures worth redelivering. Store errors keep their
// cause, so deadline and network timeouts are found through the chain.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
