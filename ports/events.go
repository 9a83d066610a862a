package ports

import "context"

// EventPublisher notifies other service instances about session lifecycle changes
type EventPublisher interface {
	PublishAuthenticated(ctx context.Context, address string, sessionID string) error
	PublishLogout(ctx context.Context, address string, sessionID string) error
}
