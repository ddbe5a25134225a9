package core

import "github.com/dkeye/gather/internal/domain"

// Client is an authenticated connection as seen by the gateway.
// UID is fixed at handshake time and never changes.
type Client struct {
	ConnID ConnID
	UID    domain.UserID
	Conn   SignalConnection
}

func NewClient(connID ConnID, uid domain.UserID, conn SignalConnection) *Client {
	return &Client{ConnID: connID, UID: uid, Conn: conn}
}
