package kernel

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/justapithecus/vkernel/iox"
	"github.com/justapithecus/vkernel/metrics"
	"github.com/justapithecus/vkernel/types"
	"github.com/justapithecus/vkernel/wire"
)

const testKey = "e2e-secret"

func freePorts(t *testing.T, n int) []int {
	t.Helper()
	ports := make([]int, 0, n)
	var listeners []net.Listener
	for range n {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}
	for _, l := range listeners {
		_ = l.Close()
	}
	return ports
}

func dial(t *testing.T, sock zmq4.Socket, endpoint string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := sock.Dial(endpoint)
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", endpoint, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func recvTimeout(t *testing.T, sock zmq4.Socket, d time.Duration) (zmq4.Msg, bool) {
	t.Helper()
	type result struct {
		msg zmq4.Msg
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := sock.Recv()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("recv: %v", r.err)
		}
		return r.msg, true
	case <-time.After(d):
		return zmq4.Msg{}, false
	}
}

func sendRequest(t *testing.T, sock zmq4.Socket, key string, msg *wire.Message) {
	t.Helper()
	frames, err := wire.Encode(msg, []byte(key))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := sock.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func recvMessage(t *testing.T, sock zmq4.Socket) *wire.Message {
	t.Helper()
	raw, ok := recvTimeout(t, sock, 5*time.Second)
	if !ok {
		t.Fatal("timed out waiting for message")
	}
	msg, err := wire.Decode(raw.Frames, []byte(testKey))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func clientRequest(msgType string, content wire.Dict) *wire.Message {
	return &wire.Message{
		Header:       wire.NewHeader(msgType, "e2e-client"),
		ParentHeader: wire.Dict{},
		Metadata:     wire.Dict{},
		Content:      content,
	}
}

func TestKernel_EndToEnd(t *testing.T) {
	ports := freePorts(t, 5)
	conn := types.ConnectionSpec{
		IP:              "127.0.0.1",
		Transport:       "tcp",
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
		Key:             testKey,
		SignatureScheme: "hmac-sha256",
	}

	m := metrics.NewCollector(metrics.Dimensions{})
	k, err := New(Config{
		Connection: conn,
		Session:    newSession(t, &scriptedRunner{result: types.ExecutionResult{Stdout: "hi\n"}}),
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Serve(ctx) }()

	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	hb := zmq4.NewReq(clientCtx)
	defer iox.DiscardClose(hb)
	dial(t, hb, conn.Endpoint(conn.HBPort))

	shell := zmq4.NewDealer(clientCtx, zmq4.WithID(zmq4.SocketIdentity("shell-client")))
	defer iox.DiscardClose(shell)
	dial(t, shell, conn.Endpoint(conn.ShellPort))

	control := zmq4.NewDealer(clientCtx, zmq4.WithID(zmq4.SocketIdentity("control-client")))
	defer iox.DiscardClose(control)
	dial(t, control, conn.Endpoint(conn.ControlPort))

	iopub := zmq4.NewSub(clientCtx)
	defer iox.DiscardClose(iopub)
	if err := iopub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	dial(t, iopub, conn.Endpoint(conn.IOPubPort))

	// Heartbeat echoes the payload byte for byte.
	if err := hb.Send(zmq4.NewMsg([]byte("ping-\x00-1"))); err != nil {
		t.Fatalf("hb send: %v", err)
	}
	echo, ok := recvTimeout(t, hb, 5*time.Second)
	if !ok || string(echo.Frames[0]) != "ping-\x00-1" {
		t.Fatalf("heartbeat echo = %q, ok=%v", echo.Frames, ok)
	}

	// kernel_info round trip.
	sendRequest(t, shell, testKey, clientRequest(types.MsgKernelInfoRequest, wire.Dict{}))
	info := recvMessage(t, shell)
	if info.MsgType() != types.MsgKernelInfoReply || info.Content["implementation"] != "v-kernel" {
		t.Fatalf("kernel_info reply = %s %v", info.MsgType(), info.Content)
	}

	// A wrongly signed request is dropped without a reply; the next valid
	// request is answered normally.
	sendRequest(t, shell, "wrong-key", clientRequest(types.MsgHistoryRequest, wire.Dict{}))
	sendRequest(t, shell, testKey, clientRequest(types.MsgIsCompleteRequest, wire.Dict{"code": "x"}))
	next := recvMessage(t, shell)
	if next.MsgType() != types.MsgIsCompleteReply {
		t.Fatalf("reply after forged request = %s", next.MsgType())
	}

	// Give the subscription time to propagate before anything is published.
	time.Sleep(300 * time.Millisecond)

	sendRequest(t, shell, testKey, clientRequest(types.MsgExecuteRequest, wire.Dict{"code": "println('hi')"}))
	reply := recvMessage(t, shell)
	if reply.MsgType() != types.MsgExecuteReply || reply.Content["status"] != "ok" {
		t.Fatalf("execute reply = %s %v", reply.MsgType(), reply.Content)
	}
	if n, _ := reply.Content["execution_count"].(json.Number); n != "1" {
		t.Errorf("execution_count = %v", reply.Content["execution_count"])
	}

	var broadcast []string
	for len(broadcast) < 4 {
		msg := recvMessage(t, iopub)
		broadcast = append(broadcast, msg.MsgType())
		if msg.MsgType() == types.MsgStream && msg.Content["text"] != "hi\n" {
			t.Errorf("stream text = %v", msg.Content["text"])
		}
	}
	want := []string{"status", "execute_input", "stream", "status"}
	for i := range want {
		if broadcast[i] != want[i] {
			t.Fatalf("iopub = %v, want %v", broadcast, want)
		}
	}

	// Restart keeps serving.
	sendRequest(t, control, testKey, clientRequest(types.MsgShutdownRequest, wire.Dict{"restart": true}))
	if r := recvMessage(t, control); r.Content["restart"] != true {
		t.Fatalf("shutdown reply = %v", r.Content)
	}
	select {
	case <-done:
		t.Fatal("kernel stopped on restart")
	case <-time.After(100 * time.Millisecond):
	}

	// Full shutdown acknowledges, then stops.
	sendRequest(t, control, testKey, clientRequest(types.MsgShutdownRequest, wire.Dict{"restart": false}))
	final := recvMessage(t, control)
	if final.MsgType() != types.MsgShutdownReply || final.Content["status"] != "ok" || final.Content["restart"] != false {
		t.Fatalf("shutdown reply = %s %v", final.MsgType(), final.Content)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("kernel did not stop after shutdown")
	}

	s := m.Snapshot()
	if s.AuthFailures != 1 {
		t.Errorf("AuthFailures = %d, want 1", s.AuthFailures)
	}
	if s.Heartbeats != 1 {
		t.Errorf("Heartbeats = %d, want 1", s.Heartbeats)
	}
}

func TestKernel_ContextCancelStops(t *testing.T) {
	ports := freePorts(t, 5)
	conn := types.ConnectionSpec{
		IP: "127.0.0.1", Transport: "tcp",
		ShellPort: ports[0], IOPubPort: ports[1], StdinPort: ports[2], ControlPort: ports[3], HBPort: ports[4],
	}
	k, err := New(Config{Connection: conn, Session: newSession(t, &scriptedRunner{})})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- k.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Session: newSession(t, &scriptedRunner{})}); err == nil {
		t.Error("expected error for empty connection")
	}

	conn := types.ConnectionSpec{IP: "127.0.0.1", Transport: "tcp", ShellPort: 1, IOPubPort: 2, StdinPort: 3, ControlPort: 4, HBPort: 5}
	if _, err := New(Config{Connection: conn}); err == nil {
		t.Error("expected error for missing session")
	}
}
