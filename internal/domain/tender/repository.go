package tender

//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the catalog collaborator. GetTender returns nil, nil when absent.
type Repository interface {
	GetTender(ctx context.Context, id uuid.UUID) (*Tender, error)
	ListLots(ctx context.Context, tenderID uuid.UUID) ([]*Lot, error)
}
