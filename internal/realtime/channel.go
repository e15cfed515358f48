package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// State is the connection state of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Listener receives decoded updates. All listeners of a channel receive the
// same *Update for a given frame; a listener that mutates it is visible to
// the listeners after it.
type Listener func(*Update)

const (
	defaultWriteWait  = 5 * time.Second
	defaultPongWait   = 25 * time.Second
	defaultPingPeriod = 10 * time.Second // should be < pongWait
	defaultReadLimit  = 4 << 20
	handshakeTimeout  = 10 * time.Second
)

type Options struct {
	URL string

	// Dial defaults to WebSocketDialer.
	Dial DialFunc

	Reconnect ReconnectPolicy

	// StableAfter is how long a connection must stay open before the attempt
	// counter resets. Zero resets it as soon as the transport opens.
	StableAfter time.Duration

	// Keepalive. A negative PingPeriod or PongWait disables it.
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	ReadLimit  int64

	Logger *log.Logger

	// OnExhausted is called once the reconnect ceiling is reached.
	OnExhausted func(attempts int)
	// OnStateChange is called after every state transition, one call at a
	// time. It must not call Connect or Disconnect.
	OnStateChange func(State)
}

type subscriber struct {
	id uint64
	fn Listener
}

// run is one Connect..Disconnect lifetime of the background loop.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Channel is a reconnecting live-update connection. Transport, decode and
// listener failures are logged and never returned to callers.
type Channel struct {
	url         string
	dial        DialFunc
	policy      ReconnectPolicy
	stableAfter time.Duration
	pingPeriod  time.Duration
	pongWait    time.Duration
	writeWait   time.Duration
	readLimit   int64
	logger      *log.Logger

	onExhausted   func(int)
	onStateChange func(State)

	// wait blocks for d or until ctx is done; false means ctx ended.
	wait func(ctx context.Context, d time.Duration) bool

	mu                  sync.Mutex
	state               State
	conn                Conn
	attempts            int
	closedIntentionally bool
	cur                 *run
	stateSeq            uint64

	notifyMu sync.Mutex // serialises OnStateChange
	notified uint64

	writeMu sync.Mutex // serialises conn writes (send, ping, close)

	subMu  sync.Mutex
	subs   []subscriber
	nextID uint64
}

func New(opts Options) *Channel {
	c := &Channel{
		url:           opts.URL,
		dial:          opts.Dial,
		policy:        opts.Reconnect.withDefaults(),
		stableAfter:   opts.StableAfter,
		pingPeriod:    opts.PingPeriod,
		pongWait:      opts.PongWait,
		writeWait:     opts.WriteWait,
		readLimit:     opts.ReadLimit,
		logger:        opts.Logger,
		onExhausted:   opts.OnExhausted,
		onStateChange: opts.OnStateChange,
		wait:          sleep,
	}
	if c.dial == nil {
		c.dial = WebSocketDialer(handshakeTimeout)
	}
	if c.pingPeriod == 0 {
		c.pingPeriod = defaultPingPeriod
	}
	if c.pongWait == 0 {
		c.pongWait = defaultPongWait
	}
	if c.writeWait <= 0 {
		c.writeWait = defaultWriteWait
	}
	if c.readLimit <= 0 {
		c.readLimit = defaultReadLimit
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect attempts since the last stable
// connection.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect starts connecting in the background. It is a no-op while a
// previous Connect is still active (connecting, connected or waiting to
// reconnect).
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cur != nil {
		state := c.state
		c.mu.Unlock()
		c.logger.Printf("[realtime] connect ignored: channel is %s", state)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	c.cur = r
	c.closedIntentionally = false
	c.attempts = 0
	seq := c.setStateLocked(Connecting)
	c.mu.Unlock()

	c.notify(seq, Connecting)
	go c.loop(r)
}

// Disconnect closes the transport on purpose. No reconnect follows, and a
// pending reconnect wait is abandoned.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	r := c.cur
	if r == nil {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.closedIntentionally = true
	conn := c.conn
	c.conn = nil
	seq := c.setStateLocked(Disconnected)
	c.mu.Unlock()

	r.cancel()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.notify(seq, Disconnected)
}

// Done returns a channel closed when the background loop of the current
// Connect exits, or nil when not connected.
func (c *Channel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.done
}

// Subscribe registers l for every update delivered from now on. The returned
// function removes it; calling it more than once is harmless.
func (c *Channel) Subscribe(l Listener) (unsubscribe func()) {
	c.subMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscriber{id: id, fn: l})
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(id) })
	}
}

func (c *Channel) unsubscribe(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			// copy so an in-flight dispatch keeps its snapshot intact
			next := make([]subscriber, 0, len(c.subs)-1)
			next = append(next, c.subs[:i]...)
			c.subs = append(next, c.subs[i+1:]...)
			return
		}
	}
}

// Send writes v as a JSON text frame. While not connected it only logs:
// there is no queue.
func (c *Channel) Send(v any) {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != Connected || conn == nil {
		c.logger.Printf("[realtime] send dropped: channel is %s", state)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Printf("[realtime] send dropped: marshal: %v", err)
		return
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Printf("[realtime] send failed: %v", err)
	}
}

func (c *Channel) loop(r *run) {
	defer close(r.done)
	defer r.cancel()
	defer c.finish(r)

	bo := c.policy.NewBackOff()
	for {
		if !c.transition(r, Connecting) {
			return
		}

		conn, err := c.dial(r.ctx, c.url)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			c.logger.Printf("[realtime] dial %s failed: %v", c.url, err)
			if !c.transition(r, Disconnected) {
				return
			}
		} else {
			if !c.opened(r, conn) {
				_ = conn.Close()
				return
			}
			if c.stableAfter <= 0 {
				bo.Reset()
			}

			openedAt := time.Now()
			err = c.session(r, conn)
			_ = conn.Close()

			if !c.closed(r, conn) || r.ctx.Err() != nil {
				return
			}
			if c.stableAfter > 0 && time.Since(openedAt) >= c.stableAfter {
				bo.Reset()
				c.mu.Lock()
				c.attempts = 0
				c.mu.Unlock()
			}
			c.logger.Printf("[realtime] connection lost: %v", err)
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			c.exhausted(r)
			return
		}

		c.mu.Lock()
		if c.cur != r || c.closedIntentionally {
			c.mu.Unlock()
			return
		}
		c.attempts++
		n := c.attempts
		c.mu.Unlock()

		c.logger.Printf("[realtime] reconnect attempt %d in %s", n, delay)
		if !c.wait(r.ctx, delay) {
			return
		}
	}
}

// session reads frames until the connection fails or r is cancelled.
func (c *Channel) session(r *run, conn Conn) error {
	conn.SetReadLimit(c.readLimit)
	if c.pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.pongWait))
		})
	}

	stop := make(chan struct{})
	defer close(stop)

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-r.ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if c.pingPeriod > 0 {
		go c.pingLoop(conn, stop)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		c.handleFrame(data)
	}
}

func (c *Channel) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				// read loop will exit soon (either due to conn close or deadline)
				_ = conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Channel) handleFrame(data []byte) {
	if cf, ok := peekControl(data); ok {
		if cf.Type == TypeError {
			c.logger.Printf("[realtime] server error: %s", cf.Message)
		}
		return
	}

	u, err := DecodeUpdate(data)
	if err != nil {
		c.logger.Printf("[realtime] dropped frame: %v", err)
		return
	}
	c.dispatch(u)
}

// dispatch calls every listener registered right now, in registration order.
func (c *Channel) dispatch(u *Update) {
	c.subMu.Lock()
	subs := c.subs
	c.subMu.Unlock()

	for _, s := range subs {
		c.invoke(s, u)
	}
}

func (c *Channel) invoke(s subscriber, u *Update) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Printf("[realtime] listener %d panicked: %v", s.id, p)
		}
	}()
	s.fn(u)
}

// transition sets the state if r is still the active run.
func (c *Channel) transition(r *run, s State) bool {
	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		return false
	}
	seq := c.setStateLocked(s)
	c.mu.Unlock()
	c.notify(seq, s)
	return true
}

func (c *Channel) opened(r *run, conn Conn) bool {
	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	if c.stableAfter <= 0 {
		c.attempts = 0
	}
	seq := c.setStateLocked(Connected)
	c.mu.Unlock()

	c.logger.Printf("[realtime] connected to %s", c.url)
	c.notify(seq, Connected)
	return true
}

func (c *Channel) closed(r *run, conn Conn) bool {
	c.mu.Lock()
	if c.cur != r || c.closedIntentionally {
		c.mu.Unlock()
		return false
	}
	if c.conn == conn {
		c.conn = nil
	}
	seq := c.setStateLocked(Disconnected)
	c.mu.Unlock()
	c.notify(seq, Disconnected)
	return true
}

func (c *Channel) exhausted(r *run) {
	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	n := c.attempts
	seq := c.setStateLocked(Disconnected)
	c.mu.Unlock()

	c.logger.Printf("[realtime] giving up after %d reconnect attempts", n)
	c.notify(seq, Disconnected)
	if c.onExhausted != nil {
		c.onExhausted(n)
	}
}

// finish releases r when the loop ends on its own, e.g. when the context
// given to Connect is cancelled.
func (c *Channel) finish(r *run) {
	c.mu.Lock()
	if c.cur != r {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.conn = nil
	seq := c.setStateLocked(Disconnected)
	c.mu.Unlock()
	c.notify(seq, Disconnected)
}

// setStateLocked records s and returns its sequence number, or 0 when the
// state did not change.
func (c *Channel) setStateLocked(s State) uint64 {
	if c.state == s {
		return 0
	}
	c.state = s
	c.stateSeq++
	return c.stateSeq
}

// notify reports the transition numbered seq. Transitions are reported in
// order; one overtaken by a newer report is dropped.
func (c *Channel) notify(seq uint64, s State) {
	if seq == 0 || c.onStateChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.notified {
		return
	}
	c.notified = seq
	c.onStateChange(s)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
