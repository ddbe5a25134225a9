package domain

import "errors"

type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusAway      Status = "away"
)

var ErrStatusInvalid = errors.New("status invalid")

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusAvailable, StatusBusy, StatusAway:
		return st, nil
	}
	return "", ErrStatusInvalid
}
