package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Notifier,SSEHub

import (
	"context"

	"github.com/canal-compras/disputa/internal/domain/identity"
)

// Notifier is the fire-and-forget notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, n *Notification)
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	// Client management
	Register(client *SSEClient)
	Unregister(clientID string)
	GetClient(clientID string) *SSEClient
	GetClientCount() int

	// BroadcastToTender sends message to the clients of tenderID whose viewer passes visible.
	BroadcastToTender(tenderID string, message *SSEMessage, visible func(identity.Caller) bool)
	SendToClient(clientID string, message *SSEMessage) error

	// Lifecycle
	Start(ctx context.Context)
	Stop()
}
