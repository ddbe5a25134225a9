package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gather/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(ctl.opts.WriteWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("ping failed")
				return
			}
		}
	}
}

// readPump handles the client's events strictly in arrival order and reports
// the disconnect once the socket is gone.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, client *core.Client, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("uid", string(client.UID)).Str("conn", string(client.ConnID)).Msg("readPump closing")
		ctl.Orch.Disconnect(client.ConnID)
		cancel()
		c.Close()
		ctl.conns.Done()
	}()

	pongWait := ctl.opts.PingPeriod * 2
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(client.ConnID)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(ctx, client, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, client *core.Client, data []byte) {
	env, err := core.DecodeEnvelope(data)
	if err != nil {
		ctl.drop(client, "", "bad_json", err)
		return
	}
	ev, err := Parse(env)
	if err != nil {
		ctl.drop(client, env.Type, "invalid", err)
		return
	}
	if m := ctl.Orch.Metrics; m != nil {
		m.Events.WithLabelValues(env.Type).Inc()
	}
	ctl.dispatch(ctx, client, ev)
}

func (ctl *SignalWSController) dispatch(ctx context.Context, client *core.Client, ev Inbound) {
	o := ctl.Orch
	switch ev := ev.(type) {
	case JoinRealm:
		o.Join(ctx, client, ev.SpaceID, ev.ShareToken)
	case MovePlayer:
		o.Move(client, ev.X, ev.Y)
	case Teleport:
		o.Teleport(client, ev.X, ev.Y, ev.RoomIndex)
	case ChangedSkin:
		o.ChangeSkin(client, ev.Skin)
	case SendMessage:
		o.SendMessage(client, ev.Message)
	case UpdateStatus:
		o.UpdateStatus(client, ev.Status)
	case Heartbeat:
		o.Heartbeat(client, ev.RoomIndex)
	case Activity:
		o.RecordActivity(client, ev.Action, ev.RoomIndex, ev.RoomName)
	case TrackPosition:
		o.TrackPosition(client, ev.RoomIndex, ev.X, ev.Y)
	default:
		log.Error().Str("module", "signal").Str("event", ev.Name()).Msg("no handler for event")
	}
}

func (ctl *SignalWSController) drop(client *core.Client, eventType, reason string, err error) {
	if m := ctl.Orch.Metrics; m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
	log.Debug().Str("module", "signal").Str("conn", string(client.ConnID)).Str("type", eventType).Str("reason", reason).Err(err).Msg("event dropped")
}
