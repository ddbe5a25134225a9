// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
	MaxSkinLen     = 32
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrSkinInvalid     = errors.New("skin invalid")
)

type UserID string

// Account is what the durable account store knows about a user.
type Account struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Skin     string `json:"skin"`
}

func NewAccount(id UserID, username, skin string) (*Account, error) {
	a := &Account{ID: id}
	if err := a.SetUsername(username); err != nil {
		return nil, err
	}
	if err := a.SetSkin(skin); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if utf8.RuneCountInString(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	a.Username = username
	return nil
}

func (a *Account) SetSkin(skin string) error {
	if len(skin) == 0 || len(skin) > MaxSkinLen {
		return ErrSkinInvalid
	}
	a.Skin = skin
	return nil
}
