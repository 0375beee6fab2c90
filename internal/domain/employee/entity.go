package employee

import (
	"context"
	"time"
)

// Employee entity. ExternalID is the identity the messaging platform
// submits check-ins under; it is optional and unique when present.
type Employee struct {
	ID         string
	Name       string
	Code       string
	PINHash    string
	ExternalID *string
	ShiftID    string
	IsApprover bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	GetByID(ctx context.Context, id string) (Employee, error)
	GetByCode(ctx context.Context, code string) (Employee, error)
	GetByExternalID(ctx context.Context, externalID string) (Employee, error)
	ListApproverIDs(ctx context.Context) ([]string, error)
}
