package app

import (
	"context"
	"errors"

	"github.com/dkeye/gather/internal/domain"
)

var ErrNotFound = errors.New("not found")

// SpaceStore is the durable space store. GetSpace returns ErrNotFound for
// unknown ids.
type SpaceStore interface {
	GetSpace(ctx context.Context, id domain.SpaceID) (*domain.Space, error)
}

// AccountStore is the durable account store. GetAccount returns ErrNotFound
// for unknown ids.
type AccountStore interface {
	GetAccount(ctx context.Context, uid domain.UserID) (*domain.Account, error)
	UpdateSkin(ctx context.Context, uid domain.UserID, skin string) error
}
