package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

const (
	// StreamName is the name of the conversation journal stream.
	StreamName = "RENOVATION_JOURNAL"

	// SubjectPrefix is the prefix for all journal subjects.
	SubjectPrefix = "reno"

	defaultReplayLimit = 100
	maxReplayLimit     = 1000
)

// Journal is an append-only record of message appends and action
// transitions, one subject per conversation.
type Journal struct {
	client *Client
}

// NewJournal creates a journal on an existing connection.
func NewJournal(client *Client) *Journal {
	return &Journal{client: client}
}

// EnsureStream creates the journal stream if it does not exist.
func (j *Journal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation message and action lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(projectID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, projectID, conversationID, eventType)
}

// ConversationFilter returns the filter subject for all events of a conversation.
func ConversationFilter(projectID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, projectID, conversationID)
}

// Publish appends an event. The event ID doubles as the JetStream message ID
// so a retried publish is deduplicated by the server.
func (j *Journal) Publish(ctx context.Context, event *model.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = j.client.JetStream().Publish(ctx,
		EventSubject(event.ProjectID, event.ConversationID, event.Type),
		data,
		jetstream.WithMsgID(event.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Replay returns up to limit events of a conversation with stream sequence
// greater than after.
func (j *Journal) Replay(ctx context.Context, projectID, conversationID string, after uint64, limit int) (*model.ListEventsResponse, error) {
	if limit <= 0 {
		limit = defaultReplayLimit
	}
	limit = min(limit, maxReplayLimit)

	consumerConfig := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationFilter(projectID, conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if after > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = after + 1
	}

	consumer, err := j.client.JetStream().OrderedConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	resp := &model.ListEventsResponse{Events: []model.ConversationEvent{}, LastSequence: after}
	for msg := range batch.Messages() {
		var event model.ConversationEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			event.Sequence = meta.Sequence.Stream
			resp.LastSequence = meta.Sequence.Stream
		}
		resp.Events = append(resp.Events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	resp.HasMore = len(resp.Events) == limit
	return resp, nil
}
