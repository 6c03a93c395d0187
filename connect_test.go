// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepRecorder records the requested sleeps without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(d time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.delays)
}

// newConnectHandle creates a handle whose connect attempts return the given
// errors in order, succeeding once they are exhausted.
func newConnectHandle(t *testing.T, failures []error, rec *eventRecorder, sleeper *sleepRecorder) (*Handle, *[]Addr) {
	t.Helper()
	var (
		mu    sync.Mutex
		addrs []Addr
	)
	sys := newFuncSyscalls()
	sys.ConnectFunc = func(fd int, addr Addr) error {
		mu.Lock()
		defer mu.Unlock()
		attempt := len(addrs)
		addrs = append(addrs, addr)
		if attempt < len(failures) {
			return failures[attempt]
		}
		return nil
	}
	cfg := newTestConfig(sys)
	cfg.Sleep = sleeper.Sleep
	h, err := NewHandle(cfg, rec.Callback, DefaultSLogger())
	require.NoError(t, err)
	return h, &addrs
}

func TestHandleConnect(t *testing.T) {
	cases := []struct {
		// name is the name of the test case
		name string

		// failures are the errors returned by the connect attempts
		failures []error

		// expectKinds are the expected events before closing
		expectKinds []EventKind

		// expectDelays are the expected backoff delays
		expectDelays []time.Duration
	}{{
		name:         "first attempt succeeds",
		failures:     nil,
		expectKinds:  []EventKind{EventConnect},
		expectDelays: nil,
	}, {
		name:         "success after two failures",
		failures:     []error{syscall.ECONNREFUSED, syscall.ETIMEDOUT},
		expectKinds:  []EventKind{EventConnect},
		expectDelays: []time.Duration{time.Second, 2 * time.Second},
	}, {
		name: "success on the last attempt",
		failures: []error{
			syscall.ECONNREFUSED, syscall.ECONNREFUSED,
			syscall.ECONNREFUSED, syscall.ECONNREFUSED,
		},
		expectKinds: []EventKind{EventConnect},
		expectDelays: []time.Duration{
			time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		},
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &eventRecorder{}
			sleeper := &sleepRecorder{}
			h, addrs := newConnectHandle(t, tc.failures, rec, sleeper)

			require.NoError(t, h.Connect(CIDHost, 1234))
			events := rec.waitEvents(t, len(tc.expectKinds))

			assert.Equal(t, tc.expectKinds, kindsOf(events))
			assert.Equal(t, tc.expectDelays, sleeper.Delays())
			for _, addr := range *addrs {
				assert.Equal(t, Addr{CID: CIDHost, Port: 1234}, addr)
			}

			h.Destroy()
			waitDone(t, h)
		})
	}
}

// When every attempt fails a single error event wraps the last failure.
func TestHandleConnectAllAttemptsFail(t *testing.T) {
	failures := []error{
		syscall.ETIMEDOUT, syscall.ETIMEDOUT, syscall.ETIMEDOUT,
		syscall.ETIMEDOUT, syscall.ECONNREFUSED,
	}
	rec := &eventRecorder{}
	sleeper := &sleepRecorder{}
	h, addrs := newConnectHandle(t, failures, rec, sleeper)

	require.NoError(t, h.Connect(CIDLocal, 5000))
	rec.waitEvents(t, 1)
	h.Destroy()
	waitDone(t, h)

	events := rec.Events()
	require.Equal(t, []EventKind{EventError, EventShutdown, EventClose}, kindsOf(events))
	err := events[0].Err
	assert.ErrorIs(t, err, ErrTransportOpFailed)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Len(t, *addrs, MaxConnectAttempts)

	var total time.Duration
	for _, delay := range sleeper.Delays() {
		total += delay
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, sleeper.Delays())
	assert.Equal(t, 31*time.Second, total)
}

func TestHandleConnectInvalidState(t *testing.T) {
	t.Run("connect twice", func(t *testing.T) {
		rec := &eventRecorder{}
		h, _ := newConnectHandle(t, nil, rec, &sleepRecorder{})

		require.NoError(t, h.Connect(CIDHost, 1234))
		assert.ErrorIs(t, h.Connect(CIDHost, 1234), ErrInvalidState)

		rec.waitEvents(t, 1)
		h.Destroy()
		waitDone(t, h)
		assert.Equal(t, []EventKind{EventConnect, EventShutdown, EventClose}, rec.Kinds())
	})

	t.Run("connect after close", func(t *testing.T) {
		rec := &eventRecorder{}
		h, addrs := newConnectHandle(t, nil, rec, &sleepRecorder{})
		require.NoError(t, h.Close())

		err := h.Connect(CIDHost, 1234)

		assert.ErrorIs(t, err, ErrInvalidState)
		waitDone(t, h)
		assert.Empty(t, *addrs)
	})
}

// Closing the handle while backing off stops the loop without an error event.
func TestHandleConnectClosedDuringBackoff(t *testing.T) {
	rec := &eventRecorder{}
	var h *Handle
	sleeper := &sleepRecorder{}
	sys := newFuncSyscalls()
	attempts := 0
	sys.ConnectFunc = func(fd int, addr Addr) error {
		attempts++
		return syscall.ECONNREFUSED
	}
	cfg := newTestConfig(sys)
	cfg.Sleep = func(d time.Duration) {
		sleeper.Sleep(d)
		h.Destroy()
	}
	h, err := NewHandle(cfg, rec.Callback, DefaultSLogger())
	require.NoError(t, err)

	require.NoError(t, h.Connect(CIDHost, 1234))
	waitDone(t, h)

	assert.Equal(t, []EventKind{EventShutdown, EventClose}, rec.Kinds())
	assert.Equal(t, []time.Duration{time.Second}, sleeper.Delays())
	assert.Equal(t, 1, attempts)
}
