package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", Device: "127.0.0.1:9229"})
	ctx = WithCDPMessage(ctx, &CDPMessage{Method: "Runtime.getProperties", ID: "4", Direction: "debugger_to_device"})
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid log output %q: %v", buf.String(), err)
	}
	if rec["component"] != "test" {
		t.Errorf("attrs from With lost: %v", rec)
	}
	sess, _ := rec["sess"].(map[string]any)
	if sess["id"] != "s1" || sess["device"] != "127.0.0.1:9229" {
		t.Errorf("unexpected sess group: %v", rec["sess"])
	}
	msg, _ := rec["cdp"].(map[string]any)
	if msg["method"] != "Runtime.getProperties" || msg["id"] != "4" {
		t.Errorf("unexpected cdp group: %v", rec["cdp"])
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	slog.New(Handler{slog.NewJSONHandler(&buf, nil)}).Info("plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid log output %q: %v", buf.String(), err)
	}
	if _, ok := rec["sess"]; ok {
		t.Error("unexpected sess group")
	}
	if _, ok := rec["cdp"]; ok {
		t.Error("unexpected cdp group")
	}
}
