package driverproto

import (
	"testing"
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

const testTimeout = time.Second

type echoHandler struct{}

func (echoHandler) Handle(req Request) Response {
	if req.Header.Op == OpWrite {
		return ErrorResponse(req, StatusPermissionDenied)
	}

	return SuccessResponse(req, req.Data)
}

func TestServer_ServeOneEchoesRequest(tt *testing.T) {
	tt.Parallel()

	cpu := kernel.NewScheduler(200, kernel.WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	driverProc, _ := kernel.NewProcessBuilder("driver", nil).Build()
	clientProc, _ := kernel.NewProcessBuilder("client", nil).Build()

	driverSide, clientSide := kernel.NewChannelPair()

	serverThread := driverProc.CreateThread("server", cpu, func(t *kernel.Thread) {
		srv := NewServer(driverSide, driverProc.Handles(), t, echoHandler{})
		for srv.ServeOne() {
		}
	}, 0, 0)

	if err := serverThread.Start(); err != nil {
		tt.Fatalf("Start server: %v", err)
	}

	result := make(chan Response, 1)
	errCh := make(chan error, 1)

	clientThread := clientProc.CreateThread("client", cpu, func(t *kernel.Thread) {
		client := NewClient(clientSide, clientProc.Handles(), t)

		resp, err := client.Call(NewRequest(OpRead, []byte("ping"), 0))
		if err != nil {
			errCh <- err
			return
		}

		result <- resp
	}, 0, 0)

	if err := clientThread.Start(); err != nil {
		tt.Fatalf("Start client: %v", err)
	}

	select {
	case resp := <-result:
		if !resp.IsSuccess() {
			tt.Fatalf("got status %v, want success", resp.Status)
		}

		if string(resp.Data) != "ping" {
			tt.Fatalf("got data %q, want %q", resp.Data, "ping")
		}
	case err := <-errCh:
		tt.Fatalf("Call failed: %v", err)
	case <-time.After(testTimeout):
		tt.Fatalf("Call never completed")
	}
}

func TestServer_ServeOneReturnsErrorStatusFromHandler(tt *testing.T) {
	tt.Parallel()

	cpu := kernel.NewScheduler(201, kernel.WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	driverProc, _ := kernel.NewProcessBuilder("driver", nil).Build()
	clientProc, _ := kernel.NewProcessBuilder("client", nil).Build()

	driverSide, clientSide := kernel.NewChannelPair()

	serverThread := driverProc.CreateThread("server", cpu, func(t *kernel.Thread) {
		srv := NewServer(driverSide, driverProc.Handles(), t, echoHandler{})
		for srv.ServeOne() {
		}
	}, 0, 0)

	if err := serverThread.Start(); err != nil {
		tt.Fatalf("Start server: %v", err)
	}

	result := make(chan Response, 1)
	errCh := make(chan error, 1)

	clientThread := clientProc.CreateThread("client", cpu, func(t *kernel.Thread) {
		client := NewClient(clientSide, clientProc.Handles(), t)

		resp, err := client.Call(NewRequest(OpWrite, []byte("data"), 0))
		if err != nil {
			errCh <- err
			return
		}

		result <- resp
	}, 0, 0)

	if err := clientThread.Start(); err != nil {
		tt.Fatalf("Start client: %v", err)
	}

	select {
	case resp := <-result:
		if resp.IsSuccess() {
			tt.Fatalf("expected a failed response for OpWrite")
		}

		if resp.Status != StatusPermissionDenied {
			tt.Fatalf("got status %v, want StatusPermissionDenied", resp.Status)
		}
	case err := <-errCh:
		tt.Fatalf("Call failed: %v", err)
	case <-time.After(testTimeout):
		tt.Fatalf("Call never completed")
	}
}

func TestServer_ServeOneReturnsFalseAfterPeerCloses(tt *testing.T) {
	tt.Parallel()

	cpu := kernel.NewScheduler(202, kernel.WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	driverProc, _ := kernel.NewProcessBuilder("driver", nil).Build()

	driverSide, clientSide := kernel.NewChannelPair()
	clientSide.Close()

	done := make(chan bool, 1)

	serverThread := driverProc.CreateThread("server", cpu, func(t *kernel.Thread) {
		srv := NewServer(driverSide, driverProc.Handles(), t, echoHandler{})
		done <- srv.ServeOne()
	}, 0, 0)

	if err := serverThread.Start(); err != nil {
		tt.Fatalf("Start server: %v", err)
	}

	select {
	case ok := <-done:
		if ok {
			tt.Fatalf("expected ServeOne to return false once the peer has closed")
		}
	case <-time.After(testTimeout):
		tt.Fatalf("ServeOne never returned")
	}
}

func TestClient_CallRejectsMismatchedRequestID(tt *testing.T) {
	tt.Parallel()

	cpu := kernel.NewScheduler(203, kernel.WithQuantum(time.Millisecond))
	cpu.Start()
	defer cpu.Stop()

	clientProc, _ := kernel.NewProcessBuilder("client", nil).Build()
	a, b := kernel.NewChannelPair()

	errCh := make(chan error, 1)

	clientThread := clientProc.CreateThread("client", cpu, func(t *kernel.Thread) {
		client := NewClient(a, clientProc.Handles(), t)
		_, err := client.Call(NewRequest(OpRead, nil, 0))
		errCh <- err
	}, 0, 0)

	if err := clientThread.Start(); err != nil {
		tt.Fatalf("Start client: %v", err)
	}

	stray := SuccessResponse(NewRequest(OpRead, nil, 0), []byte("wrong"))
	if err := b.Send(stray.Encode(), kernel.NewHandleTable(), nil); err != nil {
		tt.Fatalf("Send stray response: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			tt.Fatalf("expected Call to reject a response with a mismatched request id")
		}
	case <-time.After(testTimeout):
		tt.Fatalf("Call never returned")
	}
}
