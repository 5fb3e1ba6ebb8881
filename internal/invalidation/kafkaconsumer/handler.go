package kafkaconsumer

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/mhrdika/besttime-cache/internal/core/observability"
)

// groupHandler adapts the consumer's per-event processing to sarama's
// ConsumerGroupHandler. An offset is marked only once the event has
// been applied or deliberately skipped; an error aborts the claim so
// the message is redelivered after the group rebalances.
type groupHandler struct {
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			start := time.Now()
			err := h.process(ctx, msg)
			observability.ObserveInvalidationApply(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("apply event %s[%d]@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
