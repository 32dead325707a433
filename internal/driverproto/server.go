package driverproto

import (
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

// RequestHandler answers one driver request, mirroring
// original_source/libdriver's RequestHandler trait: a service plugs in
// its own Op semantics while this package keeps owning the framing.
type RequestHandler interface {
	Handle(req Request) Response
}

// Server serves driver requests arriving on one Channel endpoint,
// dispatching each to a RequestHandler. Shaped after
// internal/bootstrap's Handler/ServeOne, since both are "decode a fixed
// header, dispatch, encode a reply" loops over the same Channel
// primitive; driverproto's own header additionally carries a request id
// round-tripped into the reply so callers can match responses that
// arrive out of submission order (mirrors spec §4.9's request_id
// field).
type Server struct {
	endpoint *kernel.Endpoint
	handles  *kernel.HandleTable
	thread   *kernel.Thread
	handler  RequestHandler
}

// NewServer creates a driver server over endpoint. thread is the
// simulated thread driving the recv loop; nil means the caller polls
// via TryRecv rather than blocking through the scheduler (see
// bootstrap.NewHandler's identical convention).
func NewServer(endpoint *kernel.Endpoint, handles *kernel.HandleTable, thread *kernel.Thread, handler RequestHandler) *Server {
	return &Server{endpoint: endpoint, handles: handles, thread: thread, handler: handler}
}

// maxFrame bounds a single driver frame this server will buffer for one
// recv; larger transfers are a service-level concern (e.g. chunked
// reads), not this package's.
const maxFrame = 64 * 1024

// maxHandlesPerFrame bounds how many transferred handles a single
// driver frame may carry.
const maxHandlesPerFrame = 4

// ServeOne receives, dispatches, and answers a single request. It
// returns false once the peer's end of the channel has closed.
func (s *Server) ServeOne() bool {
	buf := make([]byte, maxFrame)

	var (
		n       int
		handles []kernel.Handle
		err     error
	)

	if s.thread != nil {
		n, handles, err = s.endpoint.Recv(s.thread, buf, maxHandlesPerFrame, s.handles)
	} else {
		for {
			n, handles, err = s.endpoint.TryRecv(buf, maxHandlesPerFrame, s.handles)
			if err == nil {
				break
			}

			if kerr, ok := err.(*kernel.Error); !ok || kerr.Status != kernel.StatusWouldBlock {
				break
			}

			time.Sleep(time.Millisecond)
		}
	}

	if err != nil {
		return false
	}

	req, decErr := DecodeRequest(buf[:n])
	if decErr != nil {
		return true
	}

	_ = handles

	resp := s.handler.Handle(req)

	_ = s.endpoint.Send(resp.Encode(), s.handles, nil)

	return true
}

// Client is the caller's side of a driver Channel: send a request,
// correlate the reply by request id. Mirrors bootstrap.Client's
// send-then-blocking-recv shape.
type Client struct {
	endpoint *kernel.Endpoint
	handles  *kernel.HandleTable
	thread   *kernel.Thread
}

// NewClient wraps a driver Channel endpoint already obtained from the
// name server or namespace.
func NewClient(endpoint *kernel.Endpoint, handles *kernel.HandleTable, thread *kernel.Thread) *Client {
	return &Client{endpoint: endpoint, handles: handles, thread: thread}
}

// Call sends req and waits for its matching response. Because a single
// Channel preserves send/recv order per spec §5, and this client issues
// one request at a time, the next message received is always req's
// reply; Call still checks the echoed request id and returns an error
// on mismatch rather than assuming it.
func (c *Client) Call(req Request) (Response, error) {
	if err := c.endpoint.Send(req.Encode(), c.handles, nil); err != nil {
		return Response{}, err
	}

	buf := make([]byte, maxFrame)

	n, _, err := c.endpoint.Recv(c.thread, buf, 0, c.handles)
	if err != nil {
		return Response{}, err
	}

	resp, decErr := DecodeResponse(buf[:n])
	if decErr != nil {
		return Response{}, decErr
	}

	if resp.RequestID != req.Header.RequestID {
		return Response{}, kernel.NewError("driverproto.call", kernel.StatusInvalidArgument, nil)
	}

	return resp, nil
}
