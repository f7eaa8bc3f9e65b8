package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
	"github.com/omnix-labs/omnix-voice/internal/model/voice"
)

// ErrConnectionLost reports that the push stream could not be re-established
// within the configured attempt budget.
var ErrConnectionLost = errors.New("connection lost")

// Connection states of the push channel. Transitions are driven by network
// events only, never by conversation content.
const (
	StateConnecting = "connecting"
	StateOpen       = "open"
	StateClosed     = "closed"
)

// Dialer opens one websocket connection to the push endpoint.
type Dialer func(ctx context.Context) (*websocket.Conn, error)

// PushChannel consumes the server-to-client event stream for one session.
// When the stream drops it reconnects against the same session id with
// capped exponential backoff, so server-side state survives the outage.
type PushChannel struct {
	cfg    config.LiveConfig
	dial   Dialer
	logger zerolog.Logger

	state  atomic.Value // string
	events chan voice.Event
	onOpen func()
}

// NewPushChannel builds a channel over the given dialer. Events are
// delivered on Events() in server order; heartbeats are consumed internally
// as liveness signals and not forwarded.
func NewPushChannel(cfg config.LiveConfig, dial Dialer, onOpen func(), logger zerolog.Logger) *PushChannel {
	p := &PushChannel{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With().Str("component", "push").Logger(),
		events: make(chan voice.Event, cfg.EventBuffer),
		onOpen: onOpen,
	}
	p.state.Store(StateConnecting)
	return p
}

// WebSocketDialer dials the session push endpoint of a server.
func WebSocketDialer(wsURL string) Dialer {
	return func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("dial push stream: %w", err)
		}
		return conn, nil
	}
}

// State returns the current connection state.
func (p *PushChannel) State() string {
	return p.state.Load().(string)
}

// Events returns the ordered stream of push events. The channel is closed
// when Run returns.
func (p *PushChannel) Events() <-chan voice.Event {
	return p.events
}

// Run consumes the stream until ctx is cancelled or the reconnection budget
// is exhausted. It returns nil on cancellation and ErrConnectionLost when
// the budget runs out.
func (p *PushChannel) Run(ctx context.Context) error {
	defer close(p.events)
	defer p.state.Store(StateClosed)

	for {
		conn, err := p.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Int("attempts", p.cfg.ReconnectAttempts).Msg("reconnection budget exhausted")
			return ErrConnectionLost
		}

		p.state.Store(StateOpen)
		if p.onOpen != nil {
			p.onOpen()
		}

		// A steady heartbeat keeps the read below blocked forever, so
		// cancellation has to tear the connection down from the side.
		stopWatch := context.AfterFunc(ctx, func() { conn.Close() })
		err = p.consume(ctx, conn)
		stopWatch()
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errStreamEnded) {
			// Server closed the stream deliberately; nothing to reconnect to.
			return nil
		}

		p.state.Store(StateConnecting)
		p.logger.Warn().Err(err).Msg("push stream lost, reconnecting")
	}
}

// connect dials with capped exponential backoff and a bounded attempt budget.
func (p *PushChannel) connect(ctx context.Context) (*websocket.Conn, error) {
	return retry.DoWithData(func() (*websocket.Conn, error) {
		return p.dial(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(uint(p.cfg.ReconnectAttempts)),
		retry.Delay(p.cfg.ReconnectInitialDelay),
		retry.MaxDelay(p.cfg.ReconnectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

var errStreamEnded = errors.New("push stream ended by server")

// consume reads events until the connection dies or the watchdog fires.
// The read deadline doubles as the heartbeat watchdog: any frame resets it,
// and silence past LossMultiplier heartbeat intervals kills the read.
func (p *PushChannel) consume(ctx context.Context, conn *websocket.Conn) error {
	lossWindow := time.Duration(p.cfg.HeartbeatLossMultiplier) * p.cfg.HeartbeatInterval

	for {
		if err := conn.SetReadDeadline(time.Now().Add(lossWindow)); err != nil {
			return err
		}

		var event voice.Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errStreamEnded
			}
			return fmt.Errorf("push stream read: %w", err)
		}

		if event.Type == voice.EventHeartbeat {
			continue
		}

		select {
		case p.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
