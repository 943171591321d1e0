package expiry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/sellerpro/internal/metrics"
)

// mockExpirer はExpirerのモック実装。
type mockExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	n     int64
	err   error
}

func (m *mockExpirer) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, now)
	return m.n, m.err
}

func (m *mockExpirer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// expiredMetrics はRecordPremiumExpiredの呼び出しを記録する。
type expiredMetrics struct {
	metrics.Nop
	mu      sync.Mutex
	counted []int
}

func (m *expiredMetrics) RecordPremiumExpired(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counted = append(m.counted, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestSweepJob_Run_ExpiresOverdue(t *testing.T) {
	var buf bytes.Buffer
	exp := &mockExpirer{n: 2}
	mc := &expiredMetrics{}
	job := NewSweepJob(exp, mc, newTestLogger(&buf))
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(exp.calls) != 1 {
		t.Fatalf("ExpireOverdue called %d times, want 1", len(exp.calls))
	}
	// 比較時刻はUTCで渡す
	if exp.calls[0].Location() != time.UTC || !exp.calls[0].Equal(fixed) {
		t.Errorf("now = %v, want %v in UTC", exp.calls[0], fixed)
	}
	if len(mc.counted) != 1 || mc.counted[0] != 2 {
		t.Errorf("RecordPremiumExpired calls = %v, want [2]", mc.counted)
	}
}

func TestSweepJob_Run_LogsExpiredCount(t *testing.T) {
	var buf bytes.Buffer
	job := NewSweepJob(&mockExpirer{n: 5}, metrics.Nop{}, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["expired_count"] != float64(5) {
		t.Errorf("expired_count = %v, want 5", entry["expired_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms がログに含まれていない")
	}
}

func TestSweepJob_Run_NothingToExpire(t *testing.T) {
	var buf bytes.Buffer
	mc := &expiredMetrics{}
	job := NewSweepJob(&mockExpirer{n: 0}, mc, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(mc.counted) != 0 {
		t.Errorf("RecordPremiumExpired should not be called when nothing expired, got %v", mc.counted)
	}
}

func TestSweepJob_Run_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	job := NewSweepJob(&mockExpirer{err: errors.New("connection refused")}, metrics.Nop{}, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return error when ExpireOverdue fails")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %v, want wrapped cause", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestSweepJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	exp := &mockExpirer{}
	job := NewSweepJob(exp, metrics.Nop{}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for exp.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ExpireOverdue called %d times, want at least 2", exp.callCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}
