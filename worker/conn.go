package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned once the worker side of the channel has gone away.
var ErrClosed = errors.New("worker channel closed")

const inboxSize = 256

// Channel is the front end's side of the worker boundary.
type Channel interface {
	// Send writes one request to the worker. It never waits for a reply.
	Send(req Request) error
	// Poll returns the next pending message without blocking.
	Poll() (Message, bool)
	// Receive blocks until a message arrives, the context ends, or the
	// channel closes.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Conn is a Channel over a pair of byte streams carrying JSON lines.
type Conn struct {
	log *zap.SugaredLogger

	mu  sync.Mutex
	w   io.WriteCloser
	enc *json.Encoder

	inbox chan Message
	done  chan struct{}
	stop  chan struct{}

	errMu   sync.Mutex
	readErr error
}

// NewConn starts reading messages from r and returns a channel that writes
// requests to w.
func NewConn(w io.WriteCloser, r io.Reader, log *zap.SugaredLogger) *Conn {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Conn{
		log:   log,
		w:     w,
		enc:   json.NewEncoder(w),
		inbox: make(chan Message, inboxSize),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// readLoop runs until r ends. After Close it keeps draining r but drops
// what it reads.
func (c *Conn) readLoop(r io.Reader) {
	defer close(c.done)
	defer close(c.inbox)
	dec := json.NewDecoder(r)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				c.setErr(ErrClosed)
				return
			}
			c.log.Errorw("Failed to decode worker message", zap.Error(err))
			c.setErr(fmt.Errorf("%w: decode worker message: %v", ErrClosed, err))
			return
		}
		if !msg.Kind.Valid() {
			c.log.Warnw("Dropping worker message with unknown kind", zap.String("kind", string(msg.Kind)))
			continue
		}
		select {
		case c.inbox <- msg:
		case <-c.stop:
		}
	}
}

// Done is closed once the read loop has consumed all of the worker's output.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

// Err returns the error that stopped the read loop, if any. It wraps
// ErrClosed once the worker's output has ended.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// Send encodes req as a single JSON line.
func (c *Conn) Send(req Request) error {
	if !req.Kind.Valid() || req.Kind == KindNotification {
		return fmt.Errorf("invalid request kind %q", req.Kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return ErrClosed
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("send %s: %w", req.Kind, err)
	}
	c.log.Debugw("Sent worker request", zap.String("kind", string(req.Kind)), zap.String("id", req.ID), zap.String("hash", req.Hash))
	return nil
}

// Poll consumes at most one message.
func (c *Conn) Poll() (Message, bool) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return Message{}, false
		}
		return msg, true
	default:
		return Message{}, false
	}
}

// Receive waits for the next message.
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			if err := c.Err(); err != nil {
				return Message{}, err
			}
			return Message{}, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close stops sending. Messages already queued stay readable; later ones
// are dropped.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc == nil {
		return nil
	}
	c.enc = nil
	close(c.stop)
	return c.w.Close()
}
