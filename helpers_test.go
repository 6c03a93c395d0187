// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted. Only inspect the slice once
// no background goroutine can be logging anymore.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var (
		mu      sync.Mutex
		records []slog.Record
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordMessages returns the messages of the given records.
func recordMessages(records []slog.Record) []string {
	var out []string
	for _, record := range records {
		out = append(out, record.Message)
	}
	return out
}

// funcSyscalls is a [Syscalls] whose behavior is defined by function fields.
//
// Use [newFuncSyscalls] to get an instance where every call succeeds.
type funcSyscalls struct {
	AcceptFunc      func(fd int) (int, Addr, error)
	BindFunc        func(fd int, addr Addr) error
	CloseFunc       func(fd int) error
	ConnectFunc     func(fd int, addr Addr) error
	ListenFunc      func(fd int, backlog int) error
	RecvFunc        func(fd int, buf []byte) (int, error)
	SendFunc        func(fd int, buf []byte) (int, error)
	SetBlockingFunc func(fd int) error
	ShutdownFunc    func(fd int) error
	SocketFunc      func() (int, error)
}

var _ Syscalls = &funcSyscalls{}

// fakeFd is the descriptor returned by the default SocketFunc.
const fakeFd = 7

// newFuncSyscalls returns a [*funcSyscalls] where every call succeeds,
// Recv reports the end of stream and Send sends everything.
func newFuncSyscalls() *funcSyscalls {
	return &funcSyscalls{
		AcceptFunc: func(fd int) (int, Addr, error) {
			panic("unexpected Accept call")
		},
		BindFunc:  func(fd int, addr Addr) error { return nil },
		CloseFunc: func(fd int) error { return nil },
		ConnectFunc: func(fd int, addr Addr) error {
			return nil
		},
		ListenFunc: func(fd int, backlog int) error { return nil },
		RecvFunc: func(fd int, buf []byte) (int, error) {
			return 0, nil
		},
		SendFunc: func(fd int, buf []byte) (int, error) {
			return len(buf), nil
		},
		SetBlockingFunc: func(fd int) error { return nil },
		ShutdownFunc:    func(fd int) error { return nil },
		SocketFunc:      func() (int, error) { return fakeFd, nil },
	}
}

func (s *funcSyscalls) Accept(fd int) (int, Addr, error) { return s.AcceptFunc(fd) }
func (s *funcSyscalls) Bind(fd int, addr Addr) error { return s.BindFunc(fd, addr) }
func (s *funcSyscalls) Close(fd int) error { return s.CloseFunc(fd) }
func (s *funcSyscalls) Connect(fd int, addr Addr) error { return s.ConnectFunc(fd, addr) }
func (s *funcSyscalls) Listen(fd int, backlog int) error { return s.ListenFunc(fd, backlog) }
func (s *funcSyscalls) Recv(fd int, buf []byte) (int, error) { return s.RecvFunc(fd, buf) }
func (s *funcSyscalls) Send(fd int, buf []byte) (int, error) { return s.SendFunc(fd, buf) }
func (s *funcSyscalls) SetBlocking(fd int) error { return s.SetBlockingFunc(fd) }
func (s *funcSyscalls) Shutdown(fd int) error { return s.ShutdownFunc(fd) }
func (s *funcSyscalls) Socket() (int, error) { return s.SocketFunc() }

// newTestConfig returns a [*Config] using the given syscalls and a no-op Sleep.
func newTestConfig(sys Syscalls) *Config {
	cfg := NewConfig()
	cfg.Syscalls = sys
	cfg.Sleep = func(d time.Duration) {}
	return cfg
}

// eventRecorder is a [Callback] recording all the events it receives.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

// Callback is the [Callback] to pass to the handle.
func (r *eventRecorder) Callback(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// Kinds returns the kinds of the recorded events.
func (r *eventRecorder) Kinds() []EventKind {
	return kindsOf(r.Events())
}

// kindsOf returns the kinds of the given events.
func kindsOf(events []Event) []EventKind {
	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// waitEvents waits until at least count events have been recorded.
func (r *eventRecorder) waitEvents(t *testing.T, count int) []Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.Events()) >= count
	}, 5*time.Second, time.Millisecond)
	return r.Events()
}

// newTestHandle creates a handle using the given syscalls and recorder.
func newTestHandle(t *testing.T, sys Syscalls, rec *eventRecorder) *Handle {
	t.Helper()
	h, err := NewHandle(newTestConfig(sys), rec.Callback, DefaultSLogger())
	require.NoError(t, err)
	return h
}

// waitDone waits for the handle's sink to be drained.
func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the handle to be done")
	}
}
