package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"tunecast/internal/platform/config"
)

// Kafka is the durable queue implementation. Records are keyed by
// distribution ID so per-distribution jobs stay ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka connects a combined producer/consumer-group client.
func NewKafka(cfg config.KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.JobsTopic),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Kafka{client: client, topic: cfg.JobsTopic, logger: logger}, nil
}

// EnsureTopic creates the jobs topic if the broker does not have it yet.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32) error {
	admin := kadm.NewClient(k.client)
	resp, err := admin.CreateTopics(ctx, partitions, 1, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Enqueue produces the job synchronously so the caller's transaction can
// roll back when the broker rejects it.
func (k *Kafka) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(job.DistributionID.String()),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce job: %w", err)
	}
	return nil
}

// Consume polls the consumer group and feeds jobs to the handler. Offsets
// are committed only for records the handler processed, so a failed record
// is redelivered from the last committed offset, giving at-least-once
// delivery; handlers are idempotent by distribution status.
func (k *Kafka) Consume(ctx context.Context, handle Handler) error {
	for {
		fetches := k.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			k.logger.Error("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err.Error(),
			)
		})

		var processed []*kgo.Record
		stalled := map[int32]bool{}
		fetches.EachRecord(func(record *kgo.Record) {
			// Committing a later offset would silently skip the failed
			// record, so a partition stalls at its first failure until the
			// group redelivers from the last committed offset.
			if stalled[record.Partition] {
				return
			}
			var job Job
			if err := json.Unmarshal(record.Value, &job); err != nil {
				k.logger.Error("malformed job record dropped",
					"topic", record.Topic,
					"offset", record.Offset,
					"error", err.Error(),
				)
				processed = append(processed, record)
				return
			}
			if err := handle(ctx, job); err != nil {
				k.logger.Error("job handler failed",
					"job_id", job.ID.String(),
					"kind", string(job.Kind),
					"distribution_id", job.DistributionID.String(),
					"error", err.Error(),
				)
				stalled[record.Partition] = true
				return
			}
			processed = append(processed, record)
		})

		if len(processed) > 0 {
			if err := k.client.CommitRecords(ctx, processed...); err != nil {
				k.logger.Error("commit offsets failed", "error", err.Error())
			}
		}
	}
}

// Close flushes outstanding produces and releases the client.
func (k *Kafka) Close() {
	k.client.Close()
}
