package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/metrics"
	"github.com/unclebandit/bulkmail-backend/internal/model"
)

// CampaignEventsTopic carries model.CampaignEvent payloads.
const CampaignEventsTopic = "campaign_events"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
	Close() error
}

// InMemoryQueue is an in-process queue with bounded retry per handler
type InMemoryQueue struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	handlers map[string][]func(payload any) error
	log      zerolog.Logger
	backoff  time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
		log:      log.With().Str("component", "queue").Logger(),
		backoff:  500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish hands the payload to every subscriber of topic
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: 3}
		q.wg.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.wg.Done()
	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.log.Error().Err(err).Str("topic", job.Topic).Int("attempts", job.RetryCount).Msg("job permanently failed")
			return
		}
		q.log.Warn().Err(err).Str("topic", job.Topic).Int("attempt", job.RetryCount).Msg("job failed, retrying")
		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

// StartCampaignEventSubscriber logs and counts every lifecycle event on topic.
func StartCampaignEventSubscriber(q Queue, topic string, log zerolog.Logger) error {
	log = log.With().Str("component", "campaign-events").Logger()
	return q.Subscribe(topic, func(payload any) error {
		ev, err := decodeCampaignEvent(payload)
		if err != nil {
			// A payload that cannot be decoded will not decode on retry either.
			log.Warn().Err(err).Msg("dropping malformed campaign event")
			return nil
		}

		metrics.IncCampaignEvent(string(ev.Status))
		log.Info().
			Int("campaign_id", ev.CampaignID).
			Int("owner_id", ev.OwnerID).
			Str("status", string(ev.Status)).
			Str("run_id", ev.RunID).
			Int("total", ev.Total).
			Int("succeeded", ev.Succeeded).
			Int("failed", ev.Failed).
			Msg("campaign event")
		return nil
	})
}

func decodeCampaignEvent(payload any) (model.CampaignEvent, error) {
	switch p := payload.(type) {
	case model.CampaignEvent:
		return p, nil
	case *model.CampaignEvent:
		if p == nil {
			return model.CampaignEvent{}, fmt.Errorf("nil campaign event")
		}
		return *p, nil
	case []byte:
		var ev model.CampaignEvent
		if err := json.Unmarshal(p, &ev); err != nil {
			return model.CampaignEvent{}, fmt.Errorf("decode campaign event: %w", err)
		}
		return ev, nil
	default:
		return model.CampaignEvent{}, fmt.Errorf("unexpected payload type %T", payload)
	}
}

var _ Queue = (*InMemoryQueue)(nil)
