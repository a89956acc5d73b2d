package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/beajinsu/investment/internal/domain/models"
	"github.com/beajinsu/investment/internal/domain/repository"
	"github.com/beajinsu/investment/pkg/cache"
	pkgkafka "github.com/beajinsu/investment/pkg/kafka"
)

// KafkaSnapshotPublisher implements SnapshotPublisher for Kafka. Each
// canonical record goes out as one message keyed by table and entity,
// so per-entity ordering holds under the hash balancer.
type KafkaSnapshotPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSnapshotPublisher creates a Kafka snapshot publisher.
func NewKafkaSnapshotPublisher(producer *pkgkafka.Producer, topic string) repository.SnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, table string, records []models.CanonicalRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(records))
	for i, r := range records {
		msgs[i] = pkgkafka.Message{
			Key: []byte(fmt.Sprintf("%s:%s", table, r.EntityID)),
			Value: map[string]interface{}{
				"table":  table,
				"id":     r.EntityID,
				"name":   r.DisplayName,
				"fields": r.Fields,
				"as_of":  r.AsOf.Unix(),
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// CacheSnapshotStore keeps the last known-good record set per table in
// a cache so restarts can warm-start.
type CacheSnapshotStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheSnapshotStore creates a cache-backed snapshot store.
func NewCacheSnapshotStore(c cache.Service, ttl time.Duration) repository.SnapshotStore {
	return &CacheSnapshotStore{cache: c, ttl: ttl}
}

func (s *CacheSnapshotStore) Save(ctx context.Context, table string, records []models.CanonicalRecord) error {
	// Guard against concurrent writers (several replicas feeding the
	// same cache); losing the race just means the other's records win.
	lockKey := cache.GenerateKey("snapshot:lock", table)
	ok, err := s.cache.TryLock(ctx, lockKey, 5*time.Second)
	if err != nil || !ok {
		return err
	}
	defer func() { _ = s.cache.Unlock(ctx, lockKey) }()

	return s.cache.Set(ctx, cache.GenerateKey("snapshot", table), records, s.ttl)
}

func (s *CacheSnapshotStore) Load(ctx context.Context, table string) ([]models.CanonicalRecord, error) {
	var records []models.CanonicalRecord
	if err := s.cache.Get(ctx, cache.GenerateKey("snapshot", table), &records); err != nil {
		return nil, err
	}
	return records, nil
}
