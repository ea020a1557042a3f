package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"
)

type scriptedHandler struct{}

func (scriptedHandler) Handle(_ context.Context, req Request, emit Emitter) error {
	switch req.Kind {
	case KindInstallMod:
		if req.Hash == "broken" {
			return errors.New("mod file missing")
		}
		if err := emit.Emit(Message{Kind: KindInstallMod, Hash: req.Hash, Active: true}); err != nil {
			return err
		}
		if err := emit.Notify(ModElementsCount, req.Hash, 2); err != nil {
			return err
		}
		if err := emit.Notify(InstallingModFile, req.Hash, "a.swf"); err != nil {
			return err
		}
		if err := emit.Notify(InstallingModFile, req.Hash, "b.swf"); err != nil {
			return err
		}
		return emit.Notify(InstallingModFinished, req.Hash)
	case KindGetModConflict:
		return emit.Notify(ModConflict, req.Hash, []string{"h2", "h3"})
	}
	return nil
}

func startPair(t *testing.T) *Conn {
	t.Helper()
	reqR, reqW := io.Pipe()
	msgR, msgW := io.Pipe()
	conn := NewConn(reqW, msgR, nil)
	go func() {
		_ = Serve(context.Background(), reqR, msgW, scriptedHandler{}, nil)
		msgW.Close()
	}()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, c *Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	return msg
}

func TestConnPreservesOrder(t *testing.T) {
	conn := startPair(t)

	req := HashRequest(KindInstallMod, "abc")
	if err := conn.Send(req); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := []NotificationKind{ModElementsCount, InstallingModFile, InstallingModFile, InstallingModFinished}

	first := receive(t, conn)
	if first.Kind != KindInstallMod || !first.Active || first.Hash != "abc" {
		t.Fatalf("unexpected acknowledgement %+v", first)
	}
	if first.ID != req.ID {
		t.Errorf("reply id = %q, want %q", first.ID, req.ID)
	}

	for i, kind := range want {
		msg := receive(t, conn)
		if msg.Kind != KindNotification || msg.Notification == nil {
			t.Fatalf("message %d is not a notification: %+v", i, msg)
		}
		if msg.Notification.Kind != kind {
			t.Errorf("message %d kind = %s, want %s", i, msg.Notification.Kind, kind)
		}
	}
}

func TestConnHandlerFailureBecomesNotification(t *testing.T) {
	conn := startPair(t)

	if err := conn.Send(HashRequest(KindInstallMod, "broken")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	msg := receive(t, conn)
	if msg.Notification == nil || msg.Notification.Kind != RequestFailed {
		t.Fatalf("expected RequestFailed, got %+v", msg)
	}
	if msg.Notification.Arg(0) != "mod file missing" {
		t.Errorf("failure text = %q", msg.Notification.Arg(0))
	}
}

func TestConnPollDoesNotBlock(t *testing.T) {
	conn := startPair(t)

	if _, ok := conn.Poll(); ok {
		t.Fatal("Poll returned a message on an idle channel")
	}

	if err := conn.Send(HashRequest(KindGetModConflict, "h1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := conn.Poll(); ok {
			hashes := msg.Notification.StringsArg(0)
			if len(hashes) != 2 || hashes[0] != "h2" || hashes[1] != "h3" {
				t.Errorf("conflict hashes = %v", hashes)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no message polled before deadline")
}

func TestConnReceiveAfterWorkerExit(t *testing.T) {
	conn := startPair(t)
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive error = %v, want ErrClosed", err)
	}
	if err := conn.Send(NewRequest(KindReloadMods)); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close error = %v, want ErrClosed", err)
	}
}

func TestSendRejectsNotificationKind(t *testing.T) {
	conn := startPair(t)
	if err := conn.Send(Request{Kind: KindNotification}); err == nil {
		t.Error("expected error sending a notification as a request")
	}
}

func TestNotificationArgsAfterDecode(t *testing.T) {
	data, err := json.Marshal(NewNotification(InstallingModSoundNotExist, "h", "boom", 42, "ui.swf"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	n := msg.Notification
	if n.Arg(0) != "boom" || n.Arg(1) != "42" || n.IntArg(1) != 42 || n.Arg(2) != "ui.swf" {
		t.Errorf("unexpected args %v", n.Args)
	}
	if n.Arg(7) != "" || n.IntArg(7) != 0 || n.StringsArg(7) != nil {
		t.Error("out of range args should be zero values")
	}
}

func TestNotificationKindRecoverable(t *testing.T) {
	tests := []struct {
		kind NotificationKind
		want bool
	}{
		{LoadingMod, false},
		{LoadingModIsEmpty, true},
		{ModConflict, false},
		{InstallingModSwfSprite, false},
		{InstallingModFinished, false},
		{InstallingModSpriteNotExist, true},
		{UninstallingModFinished, false},
		{UninstallingModSwfElementNotFound, true},
		{DecompilingModFinished, false},
		{CompileModSourcesSaveError, true},
		{RequestFailed, true},
		{NotificationKind("Bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Recoverable(); got != tt.want {
				t.Errorf("Recoverable() = %v, want %v", got, tt.want)
			}
		})
	}
}
