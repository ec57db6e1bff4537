package repository

import (
	"context"

	"letschat/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	// ListByIDs returns the users it finds; ids without a profile document are
	// simply absent from the result.
	ListByIDs(ctx context.Context, ids []string) ([]*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
}
