package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gather/internal/adapters/auth"
	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/app/orch"
	"github.com/dkeye/gather/internal/core"
	"github.com/dkeye/gather/internal/domain"
)

// Verifier checks that a bearer token belongs to uid.
type Verifier interface {
	VerifyFor(token string, uid domain.UserID) error
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Verifier Verifier
	Accounts app.AccountStore
	opts     Options

	mu       sync.Mutex
	draining bool
	conns    sync.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, v Verifier, accounts app.AccountStore, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		Verifier: v,
		Accounts: accounts,
		opts:     opts.withDefaults(),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates the request and only then upgrades it. ctx bounds
// the lifetime of the connection.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.Query("uid"))
	if uid == "" || len(uid) > domain.MaxUserIDLen {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing uid"})
		return
	}
	if err := ctl.Verifier.VerifyFor(auth.BearerToken(c.Request), uid); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrUIDMismatch) {
			status = http.StatusForbidden
		}
		log.Info().Str("module", "signal").Str("uid", string(uid)).Err(err).Msg("handshake refused")
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	if _, err := ctl.Accounts.GetAccount(c.Request.Context(), uid); err != nil {
		status := http.StatusForbidden
		if !errors.Is(err, app.ErrNotFound) {
			status = http.StatusServiceUnavailable
			log.Error().Str("module", "signal").Str("uid", string(uid)).Err(err).Msg("account lookup failed")
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "account not found"})
		return
	}

	if !ctl.track() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ctl.conns.Done()
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := NewWsSignalConn(ws, ctl.opts.SendBuffer)
	client := core.NewClient(core.ConnID(uuid.NewString()), uid, conn)
	log.Info().Str("module", "signal").Str("uid", string(uid)).Str("conn", string(client.ConnID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, client, conn)
}

func (ctl *SignalWSController) track() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.draining {
		return false
	}
	ctl.conns.Add(1)
	return true
}

// Wait refuses new connections and blocks until every open one has reported
// its disconnect. Connections end when the ctx given to HandleSignal is done.
func (ctl *SignalWSController) Wait() {
	ctl.mu.Lock()
	ctl.draining = true
	ctl.mu.Unlock()
	ctl.conns.Wait()
}
