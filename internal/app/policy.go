package app

import (
	"crypto/subtle"
	"errors"

	"github.com/dkeye/gather/internal/domain"
)

var (
	ErrPrivateSpace    = errors.New("space is private")
	ErrStaleShareToken = errors.New("share token does not match")
)

// Policy decides whether uid may enter a space.
type Policy interface {
	Authorize(space *domain.Space, uid domain.UserID, shareToken string) error
}

// SharePolicy lets the owner in unconditionally. Anyone else needs the space
// to be open to non-owners and the current share token.
type SharePolicy struct{}

func (SharePolicy) Authorize(space *domain.Space, uid domain.UserID, shareToken string) error {
	if space.IsOwner(uid) {
		return nil
	}
	if space.OnlyOwner {
		return ErrPrivateSpace
	}
	if space.ShareToken == "" || subtle.ConstantTimeCompare([]byte(space.ShareToken), []byte(shareToken)) != 1 {
		return ErrStaleShareToken
	}
	return nil
}
