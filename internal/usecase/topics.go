package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AffineNews/internal/domain"
	"AffineNews/internal/ports"
)

// topicsCacheControl keeps CDN copies of the topics list short-lived.
const topicsCacheControl = "public, max-age=300"

// TopicsPublisher uploads the newest trending topics list to object storage.
type TopicsPublisher struct {
	topics    ports.TopicRepository
	publisher ports.ObjectPublisher
	key       string
	timeout   time.Duration
}

// NewTopicsPublisher constructs the publisher writing to key.
func NewTopicsPublisher(topics ports.TopicRepository, publisher ports.ObjectPublisher, key string) *TopicsPublisher {
	if key == "" {
		key = "topics.json"
	}
	return &TopicsPublisher{topics: topics, publisher: publisher, key: key, timeout: 30 * time.Second}
}

// Publish uploads {"topics": [...]} and returns the batch that was sent.
func (p *TopicsPublisher) Publish(ctx context.Context) (domain.TopicBatch, error) {
	batch, err := p.topics.LatestTopics(ctx)
	if err != nil {
		return domain.TopicBatch{}, fmt.Errorf("load latest topics: %w", err)
	}

	topics := batch.Topics
	if topics == nil {
		topics = []string{}
	}
	body, err := json.Marshal(map[string][]string{"topics": topics})
	if err != nil {
		return domain.TopicBatch{}, fmt.Errorf("marshal topics: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.publisher.Put(callCtx, p.key, body, "application/json", topicsCacheControl); err != nil {
		return domain.TopicBatch{}, fmt.Errorf("publish topics: %w", err)
	}
	return batch, nil
}
