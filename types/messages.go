package types

// Message type tags consumed and produced by the kernel.
const (
	MsgKernelInfoRequest = "kernel_info_request"
	MsgKernelInfoReply   = "kernel_info_reply"
	MsgExecuteRequest    = "execute_request"
	MsgExecuteReply      = "execute_reply"
	MsgIsCompleteRequest = "is_complete_request"
	MsgIsCompleteReply   = "is_complete_reply"
	MsgCommInfoRequest   = "comm_info_request"
	MsgCommInfoReply     = "comm_info_reply"
	MsgHistoryRequest    = "history_request"
	MsgHistoryReply      = "history_reply"
	MsgShutdownRequest   = "shutdown_request"
	MsgShutdownReply     = "shutdown_reply"
	MsgInterruptRequest  = "interrupt_request"
	MsgInterruptReply    = "interrupt_reply"

	MsgStatus       = "status"
	MsgExecuteInput = "execute_input"
	MsgStream       = "stream"
	MsgError        = "error"
)

// Execution states carried by status messages.
const (
	StateBusy = "busy"
	StateIdle = "idle"
)

// Stream names carried by stream messages.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)
