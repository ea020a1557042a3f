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

// Emitter sends messages back to the front end on behalf of one request.
type Emitter interface {
	Emit(msg Message) error
	Notify(kind NotificationKind, hash string, args ...any) error
}

// Handler carries out worker requests. On success Handle emits the request's
// terminal reply itself; on failure it returns an error and Serve reports a
// RequestFailed notification in place of the terminal reply.
type Handler interface {
	Handle(ctx context.Context, req Request, emit Emitter) error
}

type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *lineWriter) write(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(msg)
}

type requestEmitter struct {
	out *lineWriter
	id  string
}

func (e requestEmitter) Emit(msg Message) error {
	msg.ID = e.id
	return e.out.write(msg)
}

func (e requestEmitter) Notify(kind NotificationKind, hash string, args ...any) error {
	return e.Emit(NewNotification(kind, hash, args...))
}

// Serve reads requests from r and hands them to h strictly one at a time, in
// arrival order, writing every emitted message to w. It returns nil when r
// reaches EOF.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	out := &lineWriter{enc: json.NewEncoder(w)}
	dec := json.NewDecoder(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		emit := requestEmitter{out: out, id: req.ID}
		if !req.Kind.Valid() || req.Kind == KindNotification {
			log.Warnw("Ignoring request with unknown kind", zap.String("kind", string(req.Kind)))
			if err := emit.Notify(RequestFailed, req.Hash, fmt.Sprintf("unknown request %q", req.Kind)); err != nil {
				return err
			}
			continue
		}

		log.Infow("Handling request", zap.String("kind", string(req.Kind)), zap.String("id", req.ID), zap.String("hash", req.Hash))
		if err := h.Handle(ctx, req, emit); err != nil {
			log.Errorw("Request failed", zap.String("kind", string(req.Kind)), zap.String("hash", req.Hash), zap.Error(err))
			if err := emit.Notify(RequestFailed, req.Hash, err.Error()); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
	}
}
