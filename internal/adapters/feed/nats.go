// Package feed consumes space change notifications and tears down the
// sessions they invalidate.
package feed

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gather/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultSubject = "spaces.changed"

// Change kinds carried by a space notification.
const (
	ChangeMap        = "map"
	ChangeShareToken = "share_token"
	ChangeVisibility = "visibility"
	ChangeDeleted    = "deleted"
)

const (
	ReasonSpaceUpdated = "The space was updated. Please rejoin."
	ReasonSpaceDeleted = "This space has been deleted."
)

type SpaceChanged struct {
	SpaceID domain.SpaceID `json:"spaceId"`
	Change  string         `json:"change"`
}

// Terminator ends every session of a space.
type Terminator interface {
	TerminateSession(spaceID domain.SpaceID, reason string)
}

// Reason maps a change kind to what kicked players are told. Unknown kinds
// are not acted on.
func Reason(change string) (string, bool) {
	switch change {
	case ChangeMap, ChangeShareToken, ChangeVisibility:
		return ReasonSpaceUpdated, true
	case ChangeDeleted:
		return ReasonSpaceDeleted, true
	}
	return "", false
}

type Consumer struct {
	conn    *nats.Conn
	subject string
	term    Terminator
	sub     *nats.Subscription
}

func Connect(url, subject string, term Terminator) (*Consumer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("gather"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Str("module", "feed").Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "feed").Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Consumer{conn: conn, subject: subject, term: term}, nil
}

// Start subscribes to the change subject. Each message terminates at most one
// session.
func (c *Consumer) Start() error {
	sub, err := c.conn.Subscribe(c.subject, func(msg *nats.Msg) {
		c.Handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	log.Info().Str("module", "feed").Str("subject", c.subject).Msg("listening for space changes")
	return nil
}

func (c *Consumer) Handle(data []byte) {
	var ev SpaceChanged
	if err := json.Unmarshal(data, &ev); err != nil || ev.SpaceID == "" {
		log.Warn().Str("module", "feed").Err(err).Msg("malformed space change")
		return
	}
	reason, ok := Reason(ev.Change)
	if !ok {
		log.Debug().Str("module", "feed").Str("space", string(ev.SpaceID)).Str("change", ev.Change).Msg("ignored space change")
		return
	}
	log.Info().Str("module", "feed").Str("space", string(ev.SpaceID)).Str("change", ev.Change).Msg("terminating session")
	c.term.TerminateSession(ev.SpaceID, reason)
}

// Publish announces a change; used by tooling that edits spaces.
func (c *Consumer) Publish(ev SpaceChanged) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.conn.Publish(c.subject, b)
}

func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
}
