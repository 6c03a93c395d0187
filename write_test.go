// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireRecorder is a Send implementation collecting the sent bytes.
type wireRecorder struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	calls int

	// chunk is the maximum number of bytes accepted by each send; zero
	// means no limit.
	chunk int

	// interrupt makes every other send fail with EINTR.
	interrupt bool
}

func (w *wireRecorder) Send(fd int, data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.interrupt && w.calls%2 == 1 {
		return -1, syscall.EINTR
	}
	if w.chunk > 0 && len(data) > w.chunk {
		data = data[:w.chunk]
	}
	w.buf.Write(data)
	return len(data), nil
}

func (w *wireRecorder) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.buf.Bytes())
}

func TestHandleWrite(t *testing.T) {
	cases := []struct {
		// name is the name of the test case
		name string

		// payload is the payload to write
		payload string

		// chunk limits how many bytes each send accepts
		chunk int

		// interrupt interleaves EINTR failures
		interrupt bool
	}{{
		name:    "single send",
		payload: "hello",
	}, {
		name:    "partial sends",
		payload: strings.Repeat("0123456789", 100),
		chunk:   7,
	}, {
		name:      "interrupted partial sends",
		payload:   strings.Repeat("abcdef", 50),
		chunk:     64,
		interrupt: true,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire := &wireRecorder{chunk: tc.chunk, interrupt: tc.interrupt}
			sys := newFuncSyscalls()
			sys.SendFunc = wire.Send
			rec := &eventRecorder{}
			h := newTestHandle(t, sys, rec)

			require.NoError(t, h.Write([]byte(tc.payload)))
			assert.Equal(t, []byte(tc.payload), wire.Bytes())
			assert.Equal(t, ModeRaw, h.Mode())

			h.Destroy()
			waitDone(t, h)
		})
	}
}

// An empty payload succeeds without any send.
func TestHandleWriteEmpty(t *testing.T) {
	sys := newFuncSyscalls()
	sys.SendFunc = func(fd int, buf []byte) (int, error) {
		panic("unexpected Send call")
	}
	rec := &eventRecorder{}
	h := newTestHandle(t, sys, rec)

	require.NoError(t, h.Write(nil))
	require.NoError(t, h.WriteText(""))

	h.Destroy()
	waitDone(t, h)
}

func TestHandleWriteText(t *testing.T) {
	wire := &wireRecorder{}
	sys := newFuncSyscalls()
	sys.SendFunc = wire.Send
	rec := &eventRecorder{}
	h := newTestHandle(t, sys, rec)

	require.NoError(t, h.WriteText("hear you! ciao"))
	assert.Equal(t, []byte("hear you! ciao"), wire.Bytes())

	h.Destroy()
	waitDone(t, h)
}

// A send failure is returned synchronously and carries the errno.
func TestHandleWriteFailure(t *testing.T) {
	logger, records := newCapturingLogger()
	sys := newFuncSyscalls()
	sys.SendFunc = func(fd int, buf []byte) (int, error) {
		return -1, syscall.EPIPE
	}
	rec := &eventRecorder{}
	h, err := NewHandle(newTestConfig(sys), rec.Callback, logger)
	require.NoError(t, err)

	err = h.Write([]byte("hello"))

	assert.ErrorIs(t, err, ErrTransportOpFailed)
	assert.ErrorIs(t, err, syscall.EPIPE)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "send", opErr.Op)
	errno, ok := opErr.Errno()
	require.True(t, ok)
	assert.Equal(t, syscall.EPIPE, errno)
	assert.Equal(t, []string{
		"socketStart", "socketDone", "sendStart", "sendDone",
	}, recordMessages(*records))

	// Write failures are not delivered as events
	h.Destroy()
	waitDone(t, h)
	assert.Equal(t, []EventKind{EventShutdown, EventClose}, rec.Kinds())
}

// A send making no progress fails instead of retrying forever.
func TestHandleWriteNoProgress(t *testing.T) {
	sys := newFuncSyscalls()
	var calls int
	sys.SendFunc = func(fd int, buf []byte) (int, error) {
		calls++
		if calls == 1 {
			return 2, nil
		}
		return 0, nil
	}
	rec := &eventRecorder{}
	h := newTestHandle(t, sys, rec)

	err := h.Write([]byte("hello"))

	assert.ErrorIs(t, err, ErrTransportOpFailed)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "send", opErr.Op)
	assert.Equal(t, 2, calls)

	h.Destroy()
	waitDone(t, h)
}

// Concurrent writers never interleave their payloads on the wire.
func TestHandleWriteConcurrent(t *testing.T) {
	wire := &wireRecorder{chunk: 3}
	sys := newFuncSyscalls()
	sys.SendFunc = wire.Send
	rec := &eventRecorder{}
	h := newTestHandle(t, sys, rec)

	payloads := []string{
		strings.Repeat("a", 64),
		strings.Repeat("b", 64),
		strings.Repeat("c", 64),
		strings.Repeat("d", 64),
	}
	wg := &sync.WaitGroup{}
	for _, payload := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.WriteText(payload))
		}()
	}
	wg.Wait()

	sent := string(wire.Bytes())
	require.Len(t, sent, 4*64)
	for offset := 0; offset < len(sent); offset += 64 {
		block := sent[offset : offset+64]
		assert.Equal(t, strings.Repeat(block[:1], 64), block)
	}

	h.Destroy()
	waitDone(t, h)
}
