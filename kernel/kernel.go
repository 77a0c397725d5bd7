// Package kernel binds the five notebook-protocol sockets and runs the
// heartbeat, control and shell loops against a single session.
//
// Topology:
//
//	shell    ROUTER  requests with one direct reply each
//	iopub    PUB     status, execute_input, stream and error broadcasts
//	stdin    ROUTER  bound, never read
//	control  ROUTER  shutdown and interrupt
//	hb       REP     echoes every payload unchanged
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/justapithecus/vkernel/adapter"
	"github.com/justapithecus/vkernel/archive"
	"github.com/justapithecus/vkernel/log"
	"github.com/justapithecus/vkernel/metrics"
	"github.com/justapithecus/vkernel/types"
	"github.com/justapithecus/vkernel/wire"
)

// recvBackoff spaces out retries after a transport error.
const recvBackoff = 10 * time.Millisecond

// Session is the state a kernel serves.
type Session interface {
	Executor
	ID() string
}

// Config configures a Kernel.
type Config struct {
	Connection types.ConnectionSpec
	Session    Session

	// Optional.
	Logger   *log.Logger
	Metrics  *metrics.Collector
	Archive  archive.Recorder
	Notifier *adapter.Notifier
}

// Kernel serves one session over the five protocol sockets.
type Kernel struct {
	conn    types.ConnectionSpec
	key     []byte
	session Session
	logger  *log.Logger
	metrics *metrics.Collector

	archive  archive.Recorder
	notifier *adapter.Notifier
}

// New creates a Kernel. Sockets are bound by Serve.
func New(cfg Config) (*Kernel, error) {
	if err := cfg.Connection.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection: %w", err)
	}
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Kernel{
		conn:     cfg.Connection,
		key:      cfg.Connection.KeyBytes(),
		session:  cfg.Session,
		logger:   logger,
		metrics:  cfg.Metrics,
		archive:  cfg.Archive,
		notifier: cfg.Notifier,
	}, nil
}

// sockets holds the bound sockets. close is idempotent.
type sockets struct {
	shell, iopub, stdin, control, hb zmq4.Socket
	once                             sync.Once
}

func (s *sockets) all() []zmq4.Socket {
	return []zmq4.Socket{s.shell, s.iopub, s.stdin, s.control, s.hb}
}

func (s *sockets) close() {
	s.once.Do(func() {
		for _, sock := range s.all() {
			if sock != nil {
				_ = sock.Close()
			}
		}
	})
}

// bind creates and binds every socket. On error, sockets bound so far are
// closed.
func (k *Kernel) bind(ctx context.Context) (*sockets, error) {
	s := &sockets{}
	specs := []struct {
		name string
		dst  *zmq4.Socket
		open func(context.Context, ...zmq4.Option) zmq4.Socket
		port int
	}{
		{"shell", &s.shell, zmq4.NewRouter, k.conn.ShellPort},
		{"iopub", &s.iopub, zmq4.NewPub, k.conn.IOPubPort},
		{"stdin", &s.stdin, zmq4.NewRouter, k.conn.StdinPort},
		{"control", &s.control, zmq4.NewRouter, k.conn.ControlPort},
		{"hb", &s.hb, zmq4.NewRep, k.conn.HBPort},
	}

	for _, spec := range specs {
		sock := spec.open(ctx)
		endpoint := k.conn.Endpoint(spec.port)
		if err := sock.Listen(endpoint); err != nil {
			_ = sock.Close()
			s.close()
			return nil, fmt.Errorf("bind %s on %s: %w", spec.name, endpoint, err)
		}
		*spec.dst = sock
	}
	return s, nil
}

// Serve binds the sockets and blocks until ctx is canceled or a
// non-restart shutdown_request has been acknowledged. Either way it
// returns nil once every loop has stopped; the caller owns the session
// and closes it afterwards.
func (k *Kernel) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	socks, err := k.bind(ctx)
	if err != nil {
		return err
	}
	defer socks.close()

	shell := newChannel("shell", socks.shell, k.key)
	iopub := newChannel("iopub", socks.iopub, k.key)
	control := newChannel("control", socks.control, k.key)

	dispatcher := NewDispatcher(DispatcherConfig{
		SessionID: k.session.ID(),
		Executor:  k.session,
		IOPub:     iopub,
		Logger:    k.logger,
		Metrics:   k.metrics,
		Archive:   k.archive,
		Notifier:  k.notifier,
	})

	k.logger.Info("kernel listening", map[string]any{
		"shell":   k.conn.Endpoint(k.conn.ShellPort),
		"iopub":   k.conn.Endpoint(k.conn.IOPubPort),
		"stdin":   k.conn.Endpoint(k.conn.StdinPort),
		"control": k.conn.Endpoint(k.conn.ControlPort),
		"hb":      k.conn.Endpoint(k.conn.HBPort),
		"signed":  len(k.key) > 0,
	})

	// Closing the sockets is what unblocks pending Recv calls.
	go func() {
		<-ctx.Done()
		socks.close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		k.heartbeatLoop(ctx, socks.hb)
	}()
	go func() {
		defer wg.Done()
		k.controlLoop(ctx, cancel, control, dispatcher)
	}()

	k.shellLoop(ctx, shell, dispatcher)

	cancel()
	socks.close()
	wg.Wait()
	dispatcher.Wait()
	return nil
}

func (k *Kernel) heartbeatLoop(ctx context.Context, hb zmq4.Socket) {
	for {
		msg, err := hb.Recv()
		if err != nil {
			if !k.pause(ctx, "hb", err) {
				return
			}
			continue
		}
		if err := hb.SendMulti(zmq4.NewMsgFrom(msg.Frames...)); err != nil && ctx.Err() == nil {
			k.logger.Warn("heartbeat echo failed", map[string]any{"error": err.Error()})
		}
		k.metrics.IncHeartbeat()
	}
}

func (k *Kernel) controlLoop(ctx context.Context, stop context.CancelFunc, control *channel, d *Dispatcher) {
	for {
		msg, ok := k.next(ctx, control)
		if !ok {
			return
		}
		if msg == nil {
			continue
		}
		if d.HandleControl(control, msg) == ControlShutdown {
			stop()
			return
		}
	}
}

func (k *Kernel) shellLoop(ctx context.Context, shell *channel, d *Dispatcher) {
	for {
		msg, ok := k.next(ctx, shell)
		if !ok {
			return
		}
		if msg == nil {
			continue
		}
		d.HandleShell(ctx, shell, msg)
	}
}

// next receives and decodes one message. A nil message with ok=true means
// the message was dropped; ok=false means the loop should stop.
func (k *Kernel) next(ctx context.Context, ch *channel) (*wire.Message, bool) {
	frames, err := ch.recv()
	if err != nil {
		return nil, k.pause(ctx, ch.name, err)
	}

	msg, err := wire.Decode(frames, k.key)
	if err != nil {
		if wire.IsAuthError(err) {
			k.metrics.IncAuthFailure()
		} else {
			k.metrics.IncMalformed()
		}
		k.logger.Warn("dropped message", map[string]any{"channel": ch.name, "error": err.Error()})
		return nil, true
	}
	return msg, true
}

// pause handles a transport error. It reports false once ctx is done.
func (k *Kernel) pause(ctx context.Context, name string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	k.logger.Warn("receive failed", map[string]any{"channel": name, "error": err.Error()})
	select {
	case <-ctx.Done():
		return false
	case <-time.After(recvBackoff):
		return true
	}
}
