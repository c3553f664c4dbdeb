package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultGatewayURL = "wss://gateway.discord.gg"

	IntentGuilds               = 1 << 0
	IntentGuildScheduledEvents = 1 << 16

	gatewayVersion  = 10
	maxMessageBytes = 8 << 20
)

const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Close codes after which reconnecting cannot succeed.
var fatalCloseCodes = map[ws.StatusCode]bool{
	4004: true, // authentication failed
	4010: true, // invalid shard
	4011: true, // sharding required
	4012: true, // invalid API version
	4013: true, // invalid intents
	4014: true, // disallowed intents
}

var (
	errReconnect      = errors.New("gateway requested reconnect")
	errInvalidSession = errors.New("gateway invalidated session")
	errZombie         = errors.New("heartbeat not acknowledged")
)

// Handler receives scheduled event dispatches. Implementations must not block.
type Handler interface {
	ScheduledEventCreate(ctx context.Context, ev *ScheduledEvent)
	// before is nil when the event was not seen earlier in this session.
	ScheduledEventUpdate(ctx context.Context, before, after *ScheduledEvent)
	ScheduledEventDelete(ctx context.Context, ev *ScheduledEvent)
}

// GatewayConfig holds gateway connection settings.
type GatewayConfig struct {
	Token         string
	URL           string
	Intents       int
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type outPayload struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Gateway maintains a websocket session with Discord and forwards scheduled
// event dispatches to a Handler.
type Gateway struct {
	cfg     GatewayConfig
	handler Handler
	cache   *EventCache
	logger  *slog.Logger

	mu        sync.Mutex
	sessionID string
	resumeURL string
	seq       atomic.Int64
	connected atomic.Bool
}

// NewGateway creates a gateway. Zero-valued config fields get defaults.
func NewGateway(cfg GatewayConfig, handler Handler, logger *slog.Logger) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.URL == "" {
		cfg.URL = DefaultGatewayURL
	}
	if cfg.Intents == 0 {
		cfg.Intents = IntentGuilds | IntentGuildScheduledEvents
	}
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 2 * time.Minute
	}
	return &Gateway{
		cfg:     cfg,
		handler: handler,
		cache:   NewEventCache(),
		logger:  logger,
	}, nil
}

// Cache returns the gateway's scheduled event cache.
func (g *Gateway) Cache() *EventCache {
	return g.cache
}

// Connected reports whether a session is currently READY or RESUMED.
func (g *Gateway) Connected() bool {
	return g.connected.Load()
}

// Run connects and keeps the session alive until ctx is canceled or Discord
// closes it with a fatal code. It returns nil on cancellation.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		err := retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
			established, err := g.session(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrFatalClose) {
				return err
			}
			if established && !errors.Is(err, errInvalidSession) {
				g.logger.Info("gateway session ended, reconnecting", "reason", err)
				return nil
			}
			g.logger.Warn("gateway connection failed", "error", err)
			return retry.RetryableError(err)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (g *Gateway) backoff() retry.Backoff {
	b := retry.NewExponential(g.cfg.ReconnectBase)
	b = retry.WithCappedDuration(g.cfg.ReconnectMax, b)
	return retry.WithJitterPercent(10, b)
}

// session runs one websocket connection. established reports whether the
// session reached READY or RESUMED before it ended.
func (g *Gateway) session(ctx context.Context) (established bool, err error) {
	conn, _, err := ws.Dial(ctx, g.connectURL(), nil)
	if err != nil {
		return false, fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	interval, err := readHello(ctx, conn)
	if err != nil {
		return false, g.classify(err)
	}

	if err := g.identifyOrResume(ctx, conn); err != nil {
		return false, fmt.Errorf("identify: %w", err)
	}

	var acked, ready atomic.Bool
	acked.Store(true)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return g.heartbeat(gctx, conn, interval, &acked)
	})
	grp.Go(func() error {
		return g.readLoop(gctx, conn, &acked, &ready)
	})
	err = grp.Wait()
	g.connected.Store(false)

	switch {
	case errors.Is(err, errReconnect), errors.Is(err, errInvalidSession), errors.Is(err, errZombie):
		// A non-1000 close keeps the session resumable.
		conn.Close(4000, "reconnecting")
	case ctx.Err() != nil:
		conn.Close(ws.StatusNormalClosure, "shutting down")
	}

	return ready.Load(), g.classify(err)
}

func (g *Gateway) classify(err error) error {
	code := ws.CloseStatus(err)
	if fatalCloseCodes[code] {
		return fmt.Errorf("%w: close code %d", ErrFatalClose, code)
	}
	switch code {
	case 4007, 4009: // invalid seq, session timed out
		g.resetSession()
	}
	return err
}

func readHello(ctx context.Context, conn *ws.Conn) (time.Duration, error) {
	var p payload
	if err := wsjson.Read(ctx, conn, &p); err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	if p.Op != opHello {
		return 0, fmt.Errorf("expected hello, got op %d", p.Op)
	}
	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("invalid heartbeat interval %d", hello.HeartbeatInterval)
	}
	return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
}

func (g *Gateway) identifyOrResume(ctx context.Context, conn *ws.Conn) error {
	g.mu.Lock()
	sessionID := g.sessionID
	g.mu.Unlock()

	if sessionID != "" {
		g.logger.Debug("resuming gateway session", "session_id", sessionID, "seq", g.seq.Load())
		return wsjson.Write(ctx, conn, outPayload{
			Op: opResume,
			D: resumeData{
				Token:     g.cfg.Token,
				SessionID: sessionID,
				Seq:       g.seq.Load(),
			},
		})
	}

	return wsjson.Write(ctx, conn, outPayload{
		Op: opIdentify,
		D: identifyData{
			Token:   g.cfg.Token,
			Intents: g.cfg.Intents,
			Properties: identifyProperties{
				OS:      "linux",
				Browser: "repeatbot",
				Device:  "repeatbot",
			},
		},
	})
}

func (g *Gateway) heartbeat(ctx context.Context, conn *ws.Conn, interval time.Duration, acked *atomic.Bool) error {
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(interval)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if !acked.Swap(false) {
			return errZombie
		}
		if err := g.sendHeartbeat(ctx, conn); err != nil {
			return fmt.Errorf("send heartbeat: %w", err)
		}
		timer.Reset(interval)
	}
}

func (g *Gateway) sendHeartbeat(ctx context.Context, conn *ws.Conn) error {
	var d any
	if s := g.seq.Load(); s > 0 {
		d = s
	}
	return wsjson.Write(ctx, conn, outPayload{Op: opHeartbeat, D: d})
}

func (g *Gateway) readLoop(ctx context.Context, conn *ws.Conn, acked, ready *atomic.Bool) error {
	for {
		var p payload
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			return err
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}

		switch p.Op {
		case opDispatch:
			if p.T == "READY" || p.T == "RESUMED" {
				ready.Store(true)
				g.connected.Store(true)
			}
			g.dispatch(ctx, p)
		case opHeartbeat:
			if err := g.sendHeartbeat(ctx, conn); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		case opHeartbeatAck:
			acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.resetSession()
			}
			return errInvalidSession
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, p payload) {
	switch p.T {
	case "READY":
		var ready struct {
			SessionID        string `json:"session_id"`
			ResumeGatewayURL string `json:"resume_gateway_url"`
			User             struct {
				Username string `json:"username"`
			} `json:"user"`
		}
		if !g.decode(p, &ready) {
			return
		}
		g.mu.Lock()
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.mu.Unlock()
		g.logger.Info("gateway ready", "user", ready.User.Username, "session_id", ready.SessionID)

	case "RESUMED":
		g.logger.Info("gateway session resumed", "seq", g.seq.Load())

	case "GUILD_CREATE":
		var guild struct {
			ID     string           `json:"id"`
			Events []ScheduledEvent `json:"guild_scheduled_events"`
		}
		if !g.decode(p, &guild) {
			return
		}
		for _, ev := range guild.Events {
			g.cache.Put(ev)
		}
		g.logger.Debug("guild available", "guild_id", guild.ID, "scheduled_events", len(guild.Events))

	case "GUILD_DELETE":
		var guild struct {
			ID          string `json:"id"`
			Unavailable bool   `json:"unavailable"`
		}
		if !g.decode(p, &guild) {
			return
		}
		if !guild.Unavailable {
			g.cache.DeleteGuild(guild.ID)
		}

	case "GUILD_SCHEDULED_EVENT_CREATE":
		var ev ScheduledEvent
		if !g.decode(p, &ev) {
			return
		}
		g.cache.Put(ev)
		g.handler.ScheduledEventCreate(ctx, &ev)

	case "GUILD_SCHEDULED_EVENT_UPDATE":
		var after ScheduledEvent
		if !g.decode(p, &after) {
			return
		}
		var before *ScheduledEvent
		if prev, ok := g.cache.Swap(after); ok {
			before = &prev
		}
		g.handler.ScheduledEventUpdate(ctx, before, &after)

	case "GUILD_SCHEDULED_EVENT_DELETE":
		var ev ScheduledEvent
		if !g.decode(p, &ev) {
			return
		}
		g.cache.Delete(ev.ID)
		g.handler.ScheduledEventDelete(ctx, &ev)
	}
}

func (g *Gateway) decode(p payload, v any) bool {
	if err := json.Unmarshal(p.D, v); err != nil {
		g.logger.Error("decode dispatch", "type", p.T, "error", err)
		return false
	}
	return true
}

func (g *Gateway) connectURL() string {
	g.mu.Lock()
	base := g.cfg.URL
	if g.sessionID != "" && g.resumeURL != "" {
		base = g.resumeURL
	}
	g.mu.Unlock()
	return fmt.Sprintf("%s/?v=%d&encoding=json", strings.TrimRight(base, "/"), gatewayVersion)
}

func (g *Gateway) resetSession() {
	g.mu.Lock()
	g.sessionID = ""
	g.resumeURL = ""
	g.mu.Unlock()
	g.seq.Store(0)
}
