package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/prizepool/warden/ports"
)

const (
	// AuthenticatedTopic carries session creation events
	AuthenticatedTopic = "auth.authenticated"

	// LogoutTopic carries session destruction events
	LogoutTopic = "auth.logout"
)

// SessionEvent is the payload for both session lifecycle topics
type SessionEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishAuthenticated publishes a session creation event
func (p *WatermillPublisher) PublishAuthenticated(ctx context.Context, address string, sessionID string) error {
	return p.publish(AuthenticatedTopic, address, sessionID)
}

// PublishLogout publishes a session destruction event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, sessionID string) error {
	return p.publish(LogoutTopic, address, sessionID)
}

func (p *WatermillPublisher) publish(topic string, address string, sessionID string) error {
	payload, err := json.Marshal(SessionEvent{
		Address:   address,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
