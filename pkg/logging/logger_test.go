// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"Info", LevelInfo},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{" error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.toSlogLevel(); got != tt.want {
				t.Errorf("toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if !(LevelDebug < LevelInfo && LevelInfo < LevelWarn && LevelWarn < LevelError) {
		t.Error("levels must be ordered Debug < Info < Warn < Error")
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New returned nil")
	}
	if logger.slog == nil {
		t.Error("underlying slog logger is nil")
	}
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "telemetry",
	})
	defer logger.Close()

	logger.Info("poll cycle complete", "trucks", 3)

	wantName := "telemetry_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("expected log file %s: %v", wantName, err)
	}
	if !strings.Contains(string(data), "poll cycle complete") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"service":"telemetry"`) {
		t.Errorf("log file missing service attribute, got: %s", data)
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir})
	defer logger.Close()

	logger.Info("unnamed service entry")

	wantName := "fleetcore_" + time.Now().Format("2006-01-02") + ".log"
	if _, err := os.Stat(filepath.Join(dir, wantName)); err != nil {
		t.Errorf("expected default-named log file %s: %v", wantName, err)
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// Construction must not fail even if the directory cannot be created.
	logger := New(Config{LogDir: string([]byte{0}) + "/nope"})
	if logger == nil {
		t.Fatal("New returned nil for invalid LogDir")
	}
	logger.Info("still works")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default returned nil")
	}
	if logger.config.Service != "fleetcore" {
		t.Errorf("Default service = %q, want fleetcore", logger.config.Service)
	}
}

// =============================================================================
// Logging Behavior
// =============================================================================

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Quiet:    true,
		Exporter: exporter,
	})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept too")

	waitForEntries(t, exporter, 2)
	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d exported entries, want 2", len(entries))
	}
	if entries[0].Level != LevelWarn || entries[1].Level != LevelError {
		t.Errorf("unexpected levels: %v, %v", entries[0].Level, entries[1].Level)
	}
}

func TestLogger_With(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter, Service: "fleetcore"})

	child := logger.With("truck_id", "T-102")
	if child == logger {
		t.Error("With must return a new logger")
	}
	child.Info("estimator state restored")

	waitForEntries(t, exporter, 1)
	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Service != "fleetcore" {
		t.Errorf("child lost service attribute: %q", entries[0].Service)
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "fleetcore"})
	child := logger.With("component", "estimator")

	if child.file != logger.file {
		t.Error("child must share the parent's file handle")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exporter})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Info("snapshot processed", "worker", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()

	waitForEntries(t, exporter, 200)
	if got := len(exporter.Entries()); got != 200 {
		t.Errorf("got %d entries, want 200", got)
	}
}

// =============================================================================
// Close Behavior
// =============================================================================

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestLogger_Close_WithFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "fleetcore"})
	logger.Info("before close")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

type errorExporter struct {
	flushErr error
	closeErr error
}

func (e *errorExporter) Export(ctx context.Context, entry LogEntry) error { return nil }
func (e *errorExporter) Flush(ctx context.Context) error                  { return e.flushErr }
func (e *errorExporter) Close() error                                     { return e.closeErr }

func TestLogger_Close_ExporterErrors(t *testing.T) {
	tests := []struct {
		name     string
		exporter LogExporter
		wantErr  bool
	}{
		{"flush error", &errorExporter{flushErr: errors.New("flush failed")}, true},
		{"close error", &errorExporter{closeErr: errors.New("close failed")}, true},
		{"no error", &errorExporter{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(Config{Quiet: true, Exporter: tt.exporter})
			err := logger.Close()
			if (err != nil) != tt.wantErr {
				t.Errorf("Close() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// MultiHandler
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	debugHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	errorHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})

	h := &multiHandler{handlers: []slog.Handler{errorHandler, debugHandler}}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("multiHandler should be enabled when any member is")
	}

	onlyError := &multiHandler{handlers: []slog.Handler{errorHandler}}
	if onlyError.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("multiHandler should be disabled when no member accepts the level")
	}
}

func TestMultiHandler_Handle(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf1, nil),
		slog.NewJSONHandler(&buf2, nil),
	}}

	logger := slog.New(h)
	logger.Info("refuel finalized", "gallons", 140.0)

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !strings.Contains(buf.String(), "refuel finalized") {
			t.Errorf("handler %d did not receive the record: %s", i, buf.String())
		}
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{slog.NewJSONHandler(&buf, nil)}}

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("carrier", "c-9")})
	slog.New(withAttrs).Info("status")

	if !strings.Contains(buf.String(), `"carrier":"c-9"`) {
		t.Errorf("attribute not propagated: %s", buf.String())
	}
}

func TestMultiHandler_Empty(t *testing.T) {
	h := &multiHandler{}
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Error("empty multiHandler must report disabled")
	}
}

// =============================================================================
// Helpers
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"/var/log/fleetcore", "/var/log/fleetcore"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := expandPath(tt.in); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{
			name: "pairs",
			args: []any{"truck_id", "T-1", "pct", 42.5},
			want: map[string]any{"truck_id": "T-1", "pct": 42.5},
		},
		{
			name: "odd trailing key",
			args: []any{"truck_id", "T-1", "dangling"},
			want: map[string]any{"truck_id": "T-1"},
		},
		{
			name: "non-string key skipped",
			args: []any{42, "value", "ok", true},
			want: map[string]any{"ok": true},
		},
		{
			name: "empty",
			args: nil,
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d keys, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("key %q = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

// =============================================================================
// Exporters
// =============================================================================

func TestBufferedExporter(t *testing.T) {
	e := NewBufferedExporter()
	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "theft suspected",
		Service:   "fleetcore",
		Attrs:     map[string]any{"truck_id": "T-7", "drop_pct": 12.0},
	}

	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	entries := e.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Message != "theft suspected" {
		t.Errorf("Message = %q", entries[0].Message)
	}

	// Entries must return a copy.
	entries[0].Message = "mutated"
	if e.Entries()[0].Message != "theft suspected" {
		t.Error("Entries() must return a copy")
	}
}

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{}); err != nil {
		t.Errorf("Export() error = %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Level:     LevelWarn,
		Message:   "degraded ECU mode",
		Attrs:     map[string]any{"truck_id": "T-3"},
	}
	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "degraded ECU mode") {
		t.Errorf("unexpected output: %s", out)
	}
}

// waitForEntries polls the buffered exporter until n entries arrived or a
// short deadline passes. Exports are asynchronous.
func waitForEntries(t *testing.T, e *BufferedExporter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(e.Entries()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d exported entries, got %d", n, len(e.Entries()))
}
