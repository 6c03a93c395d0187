// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bassosimone/vsocket"
)

// syncWriter serializes writes coming from several handles.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Write(data []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(data)
}

// send writes payload using the selected wire convention.
func send(h *vsocket.Handle, framed bool, payload string) error {
	if framed {
		return h.SendWithLength([]byte(payload))
	}
	return h.WriteText(payload)
}

// startRecv starts the receive loop using the selected wire convention.
func startRecv(h *vsocket.Handle, framed bool) error {
	if framed {
		return h.StartRecvWithLength()
	}
	return h.StartRecv()
}

// serveConn adopts an accepted descriptor and echoes back every message
// prefixed with the configured reply prefix until the peer goes away.
func serveConn(cfg *vsocket.Config, fd int, opts serverConfig, stdout io.Writer, logger *slog.Logger) (*vsocket.Handle, error) {
	var conn *vsocket.Handle
	conn, err := vsocket.NewHandleFromDescriptor(cfg, fd, func(ev vsocket.Event) {
		switch ev.Kind {
		case vsocket.EventData:
			fmt.Fprintf(stdout, "recv: %s\n", ev.Data)
			if err := send(conn, opts.Framed, opts.ReplyPrefix+string(ev.Data)); err != nil {
				logger.Info("echoFailed", slog.Any("err", err))
				conn.Destroy()
			}

		case vsocket.EventEnd:
			conn.Destroy()

		case vsocket.EventError:
			logger.Info("recvFailed", slog.Any("err", ev.Err))
			conn.Destroy()
		}
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := startRecv(conn, opts.Framed); err != nil {
		conn.Destroy()
		return nil, err
	}
	return conn, nil
}

// watchConn destroys conn when ctx is done and unregisters the watcher
// once conn is done. The returned channel reports whether the watcher
// was unregistered before firing.
func watchConn(ctx context.Context, conn *vsocket.Handle) <-chan bool {
	released := make(chan bool, 1)
	stop := vsocket.WatchContext(ctx, conn)
	go func() {
		<-conn.Done()
		released <- stop()
	}()
	return released
}

// runServer listens on the configured port and serves connections until
// the context is done.
func runServer(ctx context.Context, cfg *vsocket.Config, opts serverConfig, stdout io.Writer, logger *slog.Logger) error {
	stdout = &syncWriter{w: stdout}
	listener, err := vsocket.NewHandle(cfg, func(ev vsocket.Event) {
		switch ev.Kind {
		case vsocket.EventConnection:
			lg := logger.With(
				slog.String("spanID", vsocket.NewSpanID()),
				slog.String("remoteAddr", ev.Peer.String()),
			)
			conn, err := serveConn(cfg, ev.Descriptor, opts, stdout, lg)
			if err != nil {
				lg.Info("serveFailed", slog.Any("err", err))
				return
			}
			watchConn(ctx, conn)

		case vsocket.EventError:
			logger.Info("acceptFailed", slog.Any("err", ev.Err))
		}
	}, logger)
	if err != nil {
		return err
	}
	defer vsocket.WatchContext(ctx, listener)()

	if err := listener.Listen(opts.Port); err != nil {
		listener.Destroy()
		return err
	}
	<-listener.Done()
	return nil
}

// runClient connects to the configured server, writes the messages and
// prints the replies until the linger period expires or the server closes.
func runClient(ctx context.Context, cfg *vsocket.Config, opts clientConfig, stdout io.Writer, logger *slog.Logger) error {
	var (
		client  *vsocket.Handle
		errOnce sync.Once
		failure error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			failure = err
		})
		client.Destroy()
	}

	client, err := vsocket.NewHandle(cfg, func(ev vsocket.Event) {
		switch ev.Kind {
		case vsocket.EventConnect:
			if err := startRecv(client, opts.Framed); err != nil {
				fail(err)
				return
			}
			for _, message := range opts.Messages {
				if err := send(client, opts.Framed, message); err != nil {
					fail(err)
					return
				}
			}
			time.AfterFunc(opts.Linger.Duration, client.Destroy)

		case vsocket.EventData:
			fmt.Fprintf(stdout, "recv: %s\n", ev.Data)

		case vsocket.EventEnd:
			client.Destroy()

		case vsocket.EventError:
			fail(ev.Err)
		}
	}, logger)
	if err != nil {
		return err
	}
	defer vsocket.WatchContext(ctx, client)()

	if err := client.Connect(opts.CID, opts.Port); err != nil {
		client.Destroy()
		return err
	}
	<-client.Done()
	return failure
}
