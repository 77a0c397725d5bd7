package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/vkernel/adapter"
	"github.com/justapithecus/vkernel/archive"
	"github.com/justapithecus/vkernel/log"
	"github.com/justapithecus/vkernel/metrics"
	"github.com/justapithecus/vkernel/session"
	"github.com/justapithecus/vkernel/types"
	"github.com/justapithecus/vkernel/wire"
)

// archiveTimeout bounds one archive write.
const archiveTimeout = 30 * time.Second

// Sender transmits one message on a channel.
type Sender interface {
	Send(msg *wire.Message) error
}

// Executor runs cells against accumulated session state.
type Executor interface {
	Execute(ctx context.Context, code string) session.Outcome
	Count() int
}

// ControlAction tells the control loop what to do after a request.
type ControlAction int

const (
	// ControlContinue keeps serving.
	ControlContinue ControlAction = iota
	// ControlShutdown stops the kernel.
	ControlShutdown
)

// Dispatcher turns decoded requests into replies and broadcasts. It owns
// no sockets: replies go to the Sender passed per call and broadcasts to
// the iopub Sender.
type Dispatcher struct {
	sessionID string
	executor  Executor
	iopub     Sender

	logger   *log.Logger
	metrics  *metrics.Collector
	archive  archive.Recorder
	notifier *adapter.Notifier

	// execMu serializes execute requests for their whole duration.
	execMu sync.Mutex
	// pending tracks background archive writes.
	pending sync.WaitGroup
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	SessionID string
	Executor  Executor
	IOPub     Sender

	// Optional.
	Logger   *log.Logger
	Metrics  *metrics.Collector
	Archive  archive.Recorder
	Notifier *adapter.Notifier
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		sessionID: cfg.SessionID,
		executor:  cfg.Executor,
		iopub:     cfg.IOPub,
		logger:    logger,
		metrics:   cfg.Metrics,
		archive:   cfg.Archive,
		notifier:  cfg.Notifier,
	}
}

// HandleShell answers one shell request. Unknown types are logged and get
// no reply.
func (d *Dispatcher) HandleShell(ctx context.Context, shell Sender, msg *wire.Message) {
	msgType := msg.MsgType()
	d.metrics.IncMessage(msgType)
	d.logger.Debug("shell request", map[string]any{"msg_type": msgType})

	switch msgType {
	case types.MsgKernelInfoRequest:
		d.reply(shell, msg, types.MsgKernelInfoReply, KernelInfo())
	case types.MsgExecuteRequest:
		d.execute(ctx, shell, msg)
	case types.MsgIsCompleteRequest:
		d.reply(shell, msg, types.MsgIsCompleteReply, wire.Dict{"status": "complete"})
	case types.MsgCommInfoRequest:
		d.reply(shell, msg, types.MsgCommInfoReply, wire.Dict{"status": "ok", "comms": wire.Dict{}})
	case types.MsgHistoryRequest:
		d.reply(shell, msg, types.MsgHistoryReply, wire.Dict{"status": "ok", "history": []any{}})
	default:
		d.metrics.IncUnhandled()
		d.logger.Warn("unhandled shell message", map[string]any{"msg_type": msgType})
	}
}

// HandleControl answers one control request. The shutdown reply is sent
// before ControlShutdown is returned.
func (d *Dispatcher) HandleControl(control Sender, msg *wire.Message) ControlAction {
	msgType := msg.MsgType()
	d.metrics.IncMessage(msgType)

	switch msgType {
	case types.MsgShutdownRequest:
		restart := wire.BoolField(msg.Content, "restart")
		d.reply(control, msg, types.MsgShutdownReply, wire.Dict{"status": "ok", "restart": restart})
		d.logger.Info("shutdown requested", map[string]any{"restart": restart})
		if restart {
			return ControlContinue
		}
		return ControlShutdown

	case types.MsgInterruptRequest:
		// The toolchain run is synchronous; there is nothing to cancel.
		d.reply(control, msg, types.MsgInterruptReply, wire.Dict{"status": "ok"})
		d.logger.Info("interrupt requested, not supported", nil)
		return ControlContinue

	default:
		d.metrics.IncUnhandled()
		d.logger.Warn("unhandled control message", map[string]any{"msg_type": msgType})
		return ControlContinue
	}
}

// execute runs the fixed execute_request sequence: busy, execute_input,
// run, streams and error, execute_reply, idle. Broadcasts are suppressed
// for silent requests; the reply never is.
func (d *Dispatcher) execute(ctx context.Context, shell Sender, msg *wire.Message) {
	code := wire.StringField(msg.Content, "code")
	silent := wire.BoolField(msg.Content, "silent")

	d.execMu.Lock()
	defer d.execMu.Unlock()

	if !silent {
		d.publish(msg, types.MsgStatus, statusContent(types.StateBusy))
		d.publish(msg, types.MsgExecuteInput, wire.Dict{
			"code":            code,
			"execution_count": d.executor.Count() + 1,
		})
	}

	d.metrics.IncExecutionStarted()
	out := d.executor.Execute(ctx, code)
	res := out.Result
	d.metrics.RecordExecutionResult(res.IsError, string(res.Kind))

	if !silent {
		if res.Stdout != "" {
			d.publish(msg, types.MsgStream, streamContent(types.StreamStdout, res.Stdout))
		}
		switch {
		case res.IsError:
			d.publish(msg, types.MsgStream, streamContent(types.StreamStderr, res.Stderr))
			d.publish(msg, types.MsgError, errorContent(res.Stderr))
		case res.Stderr != "":
			d.publish(msg, types.MsgStream, streamContent(types.StreamStderr, res.Stderr))
		}
	}

	d.reply(shell, msg, types.MsgExecuteReply, executeReplyContent(res, out.Count))

	if !silent {
		d.publish(msg, types.MsgStatus, statusContent(types.StateIdle))
	}

	fields := map[string]any{
		"execution_count": out.Count,
		"status":          res.Status(),
		"duration_ms":     out.Duration.Milliseconds(),
	}
	if res.IsError {
		fields["error_kind"] = string(res.Kind)
	}
	d.logger.Info("cell executed", fields)

	d.record(out)
}

// record hands the outcome to the journal, archive and notifier side
// channels. None of them can affect the reply.
func (d *Dispatcher) record(out session.Outcome) {
	if out.JournalErr != nil {
		d.metrics.IncJournalFailure()
		d.logger.Warn("journal append failed", map[string]any{"error": out.JournalErr.Error()})
	}
	if out.Record == nil {
		return
	}

	if d.archive != nil {
		rec := out.Record
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			err := d.archive.Record(ctx, rec)
			d.metrics.RecordArchive(err)
			if err != nil {
				d.logger.Warn("archive write failed", map[string]any{
					"execution_count": rec.ExecutionCount,
					"error":           err.Error(),
				})
			}
		}()
	}

	if d.notifier != nil {
		d.notifier.Notify(adapter.EventFromRecord(out.Record))
	}
}

// Wait blocks until background archive writes finish.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

func (d *Dispatcher) reply(to Sender, parent *wire.Message, msgType string, content wire.Dict) {
	if err := to.Send(parent.Reply(msgType, d.sessionID, content)); err != nil {
		d.logger.Warn("send reply failed", map[string]any{"msg_type": msgType, "error": err.Error()})
	}
}

func (d *Dispatcher) publish(parent *wire.Message, msgType string, content wire.Dict) {
	if err := d.iopub.Send(parent.Broadcast(msgType, d.sessionID, content)); err != nil {
		d.logger.Warn("iopub publish failed", map[string]any{"msg_type": msgType, "error": err.Error()})
	}
}
