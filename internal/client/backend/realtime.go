package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

const (
	defaultHeartbeat = 25 * time.Second
	joinTimeout      = 10 * time.Second
	maxReconnectWait = 30 * time.Second
)

// ChangeFilter selects database changes for a realtime channel.
type ChangeFilter struct {
	// Channel names the topic; empty means "<schema>-<table>-changes".
	Channel string
	// Event is INSERT, UPDATE, DELETE or *.
	Event  string
	Schema string
	Table  string
}

func (f ChangeFilter) topic() string {
	name := f.Channel
	if name == "" {
		name = f.Schema + "-" + f.Table + "-changes"
	}
	return "realtime:" + name
}

// Change is one database change delivered over realtime.
type Change struct {
	Type            string          `json:"type"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp string          `json:"commit_timestamp"`
}

// ChangeHandler consumes changes. Calls for one channel are sequential.
type ChangeHandler func(ctx context.Context, ch Change)

// RealtimeClient opens change-feed channels over websocket.
type RealtimeClient struct {
	c         *Client
	heartbeat time.Duration
	dialer    *websocket.Dialer
	logger    logging.Logger
}

func newRealtimeClient(c *Client, heartbeat time.Duration, logger logging.Logger) *RealtimeClient {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &RealtimeClient{
		c:         c,
		heartbeat: heartbeat,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type phxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// Subscribe joins a channel for filter and calls handler for every
// matching change until the channel is unsubscribed or ctx is done.
// A dropped connection is re-established with capped exponential backoff.
func (r *RealtimeClient) Subscribe(ctx context.Context, filter ChangeFilter, handler ChangeHandler) (*Channel, error) {
	if filter.Schema == "" {
		filter.Schema = "public"
	}
	if filter.Event == "" {
		filter.Event = "*"
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := &Channel{
		rt:      r,
		filter:  filter,
		topic:   filter.topic(),
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  r.logger.With("topic", filter.topic()),
	}

	conn, err := ch.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			ch.Unsubscribe()
		case <-ch.done:
		}
	}()
	go ch.run(runCtx, conn)
	return ch, nil
}

func (r *RealtimeClient) endpoint() string {
	u := *r.c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = r.c.base.Path + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {r.c.key}, "vsn": {"1.0.0"}}.Encode()
	return u.String()
}

// Channel is a joined realtime topic.
type Channel struct {
	rt      *RealtimeClient
	filter  ChangeFilter
	topic   string
	handler ChangeHandler
	logger  logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	ref     atomic.Int64
}

// Topic returns the joined topic name.
func (ch *Channel) Topic() string { return ch.topic }

// Done is closed once the channel has stopped.
func (ch *Channel) Done() <-chan struct{} { return ch.done }

// Unsubscribe leaves the topic and closes the connection. It is idempotent
// and waits for the handler goroutine to finish, so it must not be called
// from inside the handler.
func (ch *Channel) Unsubscribe() {
	ch.once.Do(func() {
		ch.mu.Lock()
		conn := ch.conn
		ch.mu.Unlock()
		if conn != nil {
			_ = ch.send(conn, "phx_leave", struct{}{})
		}
		ch.cancel()
		if conn != nil {
			_ = conn.Close()
		}
	})
	<-ch.done
}

func (ch *Channel) nextRef() string {
	return strconv.FormatInt(ch.ref.Add(1), 10)
}

func (ch *Channel) send(conn *websocket.Conn, event string, payload any) error {
	return ch.sendTopic(conn, ch.topic, event, payload)
}

func (ch *Channel) sendTopic(conn *websocket.Conn, topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ref := ch.nextRef()
	msg := phxMessage{Topic: topic, Event: event, Payload: raw, Ref: &ref}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(joinTimeout))
	return conn.WriteJSON(msg)
}

// connect dials and joins, returning the joined connection.
func (ch *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := ch.rt.dialer.DialContext(ctx, ch.rt.endpoint(), nil)
	if err != nil {
		return nil, transportError("realtime dial", err)
	}

	join := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]string{{
				"event":  ch.filter.Event,
				"schema": ch.filter.Schema,
				"table":  ch.filter.Table,
			}},
		},
		"access_token": ch.rt.c.bearer(),
	}

	raw, err := json.Marshal(join)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	ref := ch.nextRef()
	ch.writeMu.Lock()
	err = conn.WriteJSON(phxMessage{Topic: ch.topic, Event: "phx_join", Payload: raw, Ref: &ref})
	ch.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		return nil, transportError("realtime join", err)
	}

	deadline := time.Now().Add(joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			_ = conn.Close()
			return nil, transportError("realtime join", err)
		}
		if msg.Event != "phx_reply" || msg.Ref == nil || *msg.Ref != ref {
			continue
		}
		var reply phxReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			_ = conn.Close()
			return nil, err
		}
		if reply.Status != "ok" {
			_ = conn.Close()
			return nil, fmt.Errorf("realtime join %s rejected: %s", ch.topic, string(reply.Response))
		}
		break
	}

	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()
	ch.logger.Debug(ctx, "realtime channel joined")
	return conn, nil
}

func (ch *Channel) run(ctx context.Context, conn *websocket.Conn) {
	defer close(ch.done)

	for {
		err := ch.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		ch.logger.Warn(ctx, "realtime connection lost", "error", err)

		conn, err = ch.reconnect(ctx)
		if err != nil {
			return
		}
	}
}

func (ch *Channel) reconnect(ctx context.Context) (*websocket.Conn, error) {
	b := retry.WithCappedDuration(maxReconnectWait, retry.NewExponential(500*time.Millisecond))
	var conn *websocket.Conn
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		c, err := ch.connect(ctx)
		if err != nil {
			ch.logger.Debug(ctx, "realtime reconnect failed", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

// serve reads until the connection fails or ctx is done, with a heartbeat
// goroutine alongside.
func (ch *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		t := time.NewTicker(ch.rt.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				if err := ch.sendTopic(conn, "phoenix", "heartbeat", struct{}{}); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			_ = conn.Close()
			return err
		}
		switch msg.Event {
		case "postgres_changes":
			var p struct {
				Data Change `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				ch.logger.Warn(ctx, "bad realtime payload", "error", err)
				continue
			}
			ch.handler(ctx, p.Data)
		case "phx_error", "phx_close":
			if msg.Topic == ch.topic {
				_ = conn.Close()
				return errors.New("channel " + msg.Event)
			}
		}
	}
}
