package redpanda

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Audit stream topics.
const (
	TopicAuditSafety     = "audit.safety"
	TopicAuditBilling    = "audit.billing"
	TopicAuditDeadLetter = "audit.deadletter"
)

// TopicConfig holds one topic's creation parameters.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// DefaultTopicConfigs returns the audit topics. Retention is long:
// warned and blocked prescriptions and billing claims are the records a
// clinical audit asks for months later.
func DefaultTopicConfigs() []TopicConfig {
	ptr := func(s string) *string { return &s }

	auditConfigs := map[string]*string{
		"retention.ms":     ptr("7776000000"), // 90 days
		"cleanup.policy":   ptr("delete"),
		"compression.type": ptr("lz4"),
	}

	return []TopicConfig{
		{
			Name:              TopicAuditSafety,
			Partitions:        6,
			ReplicationFactor: 1, // 3 in production
			Configs:           auditConfigs,
		},
		{
			Name:              TopicAuditBilling,
			Partitions:        6,
			ReplicationFactor: 1,
			Configs:           auditConfigs,
		},
		{
			Name:              TopicAuditDeadLetter,
			Partitions:        1,
			ReplicationFactor: 1,
			Configs: map[string]*string{
				"retention.ms":   ptr("2592000000"), // 30 days
				"cleanup.policy": ptr("delete"),
			},
		},
	}
}

// EnsureTopics creates any missing audit topics.
func EnsureTopics(ctx context.Context, brokers []string, topics []TopicConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	for _, tc := range topics {
		if existing.Has(tc.Name) {
			continue
		}
		resp, err := adm.CreateTopic(ctx, tc.Partitions, tc.ReplicationFactor, tc.Configs, tc.Name)
		if err != nil {
			return fmt.Errorf("create topic %s: %w", tc.Name, err)
		}
		if resp.Err != nil {
			return fmt.Errorf("create topic %s: %w", tc.Name, resp.Err)
		}
		logger.Info("topic created",
			zap.String("topic", tc.Name),
			zap.Int32("partitions", tc.Partitions))
	}

	return nil
}
