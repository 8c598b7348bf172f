package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlogBridge_EmitsAttrsThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	sl := NewSlog(&zl)

	sl.Info("resolved",
		"backend", "qld_dem",
		"attempts", int64(2),
		"duration", 150*time.Millisecond)

	out := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"message":"resolved"`,
		`"backend":"qld_dem"`,
		`"attempts":2`,
		`"duration":150`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line missing %s: %s", want, out)
		}
	}
}

func TestSlogBridge_RespectsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.InfoLevel)
	sl := NewSlog(&zl)

	sl.Debug("noise")
	if buf.Len() != 0 {
		t.Fatalf("debug line emitted past an info-level logger: %s", buf.String())
	}
	sl.Warn("signal")
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("warn line missing: %s", buf.String())
	}
}

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	sl := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "abcd1234")
	ctx = WithBackend(ctx, "open_api")
	sl.InfoContext(ctx, "attempt")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"abcd1234"`) || !strings.Contains(out, `"backend":"open_api"`) {
		t.Fatalf("context fields missing: %s", out)
	}
}
