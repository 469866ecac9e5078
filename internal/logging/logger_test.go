package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func reset() {
	mu.Lock()
	defer mu.Unlock()
	loggers = make(map[string]*slog.Logger)
	moduleLevels = make(map[string]*slog.LevelVar)
	initialized = false
	config = Config{}
	history = NewHistory(historySize)
}

func TestModuleLevelOverride(t *testing.T) {
	reset()
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"camera": "debug",
			"api":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"camera", true, true, true},
		{"api", false, false, true},
		{"service", false, true, true},
	}
	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerCreatedBeforeInitialize(t *testing.T) {
	reset()
	logger := GetLogger("camera")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug enabled before Initialize")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"camera": "debug"}})
	if !GetLogger("camera").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Initialize did not apply the module level to an existing logger")
	}
}

func TestSetLevel(t *testing.T) {
	reset()
	Initialize(Config{Level: "info"})
	logger := GetLogger("camera")

	if err := SetLevel("camera", "debug"); err != nil {
		t.Fatal(err)
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("SetLevel did not lower the module level")
	}
	if err := SetLevel("camera", "loud"); err == nil {
		t.Error("SetLevel accepted an unknown level")
	}
	if err := SetLevel("", "error"); err != nil {
		t.Fatal(err)
	}
	if slog.Default().Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("global level not raised to error")
	}
}

func TestHistoryCapturesRecords(t *testing.T) {
	reset()
	Initialize(Config{Level: "debug"})
	GetLogger("camera").With("camera", "0a").Warn("Reconnect failed", "error", errors.New("bus reset"), "after", time.Second)

	entries := Recent()
	if len(entries) == 0 {
		t.Fatal("no history entries")
	}
	e := entries[len(entries)-1]
	if e.Module != "camera" || e.Level != "warn" || e.Message != "Reconnect failed" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attrs["camera"] != "0a" || e.Attrs["error"] != "bus reset" || e.Attrs["after"] != "1s" {
		t.Errorf("attrs = %v", e.Attrs)
	}
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Add(Entry{Message: string(rune('a' + i))})
	}
	got := h.All()
	if h.Len() != 3 || len(got) != 3 {
		t.Fatalf("Len() = %d, All() has %d, want 3", h.Len(), len(got))
	}
	for i, want := range []string{"c", "d", "e"} {
		if got[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, got[i].Message, want)
		}
	}
}

func TestHistoryGroups(t *testing.T) {
	h := NewHistory(4)
	logger := slog.New(NewHistoryHandler(h, slog.LevelInfo)).WithGroup("frame")
	logger.Info("Frame", "number", 7, slog.Group("roi", "width", 640))

	e := h.All()[0]
	if e.Attrs["frame.number"] != int64(7) || e.Attrs["frame.roi.width"] != int64(640) {
		t.Errorf("attrs = %v", e.Attrs)
	}
}

func TestFanoutSkipsDisabled(t *testing.T) {
	debug, warn := NewHistory(4), NewHistory(4)
	logger := slog.New(NewFanout(
		NewHistoryHandler(debug, slog.LevelDebug),
		NewHistoryHandler(warn, slog.LevelWarn),
	))
	logger.Info("hello")
	if debug.Len() != 1 || warn.Len() != 0 {
		t.Errorf("debug=%d warn=%d, want 1/0", debug.Len(), warn.Len())
	}
}

func TestJournalField(t *testing.T) {
	fields := make(map[string]string)
	journalField(fields, slog.Group("frame", "number", 3), []string{"camera"})
	journalField(fields, slog.Bool("running", true), nil)
	if fields["CAMERA_FRAME_NUMBER"] != "3" || fields["RUNNING"] != "true" {
		t.Errorf("fields = %v", fields)
	}
}
