package bootstrap

import (
	"time"

	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

// Provider is a process's side of the bootstrap relationship as seen by
// the handler: the parent (usually init) resolves a service name to a
// channel endpoint it hands off by value, transferring ownership.
type Provider interface {
	// Resolve returns the client-facing endpoint of the named service,
	// or an error if no such service is registered.
	Resolve(name string) (*kernel.Endpoint, error)
	// Register records that channel is the provider-facing endpoint
	// for the named service. Implementations may restrict this to
	// privileged callers.
	Register(name string, channel *kernel.Endpoint) error
	// Names lists every currently registered service name.
	Names() []string
}

// Handler serves bootstrap requests arriving on one process's bootstrap
// endpoint, dispatching to a Provider (spec §6). Grounded on
// original_source/bootstrap/src/protocol.rs's wire shapes and on the
// request/response loop original_source/bootstrap/src/client.rs drives
// from the other end.
type Handler struct {
	endpoint *kernel.Endpoint
	handles  *kernel.HandleTable
	thread   *kernel.Thread
	provider Provider
}

// NewHandler creates a handler that serves requests on endpoint,
// resolving handles against handles (the serving process's own handle
// table, which receives incoming handles on RegisterProvider and stages
// the endpoint handle a GetService reply transfers).
// thread is the simulated thread driving this handler's recv loop; pass
// nil when the caller is a host goroutine not itself modeled as a
// kernel.Thread (e.g. init's own event loop), in which case ServeOne
// polls with TryRecv instead of blocking through the scheduler.
func NewHandler(endpoint *kernel.Endpoint, handles *kernel.HandleTable, thread *kernel.Thread, provider Provider) *Handler {
	return &Handler{endpoint: endpoint, handles: handles, thread: thread, provider: provider}
}

// ServeOne receives and answers a single bootstrap request, blocking
// until one arrives. It returns false once the peer has closed the
// channel, signaling the caller's serve loop to stop.
func (h *Handler) ServeOne() bool {
	buf := make([]byte, RequestHeaderSize+MaxServiceName)

	var (
		n       int
		handles []kernel.Handle
		err     error
	)

	if h.thread != nil {
		n, handles, err = h.endpoint.Recv(h.thread, buf, 1, h.handles)
	} else {
		for {
			n, handles, err = h.endpoint.TryRecv(buf, 1, h.handles)
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

	req, ok := DecodeRequest(buf[:n])
	if !ok {
		h.reply(ErrorResponse(ResponseInvalidRequest), nil)
		return true
	}

	switch req.Type {
	case RequestGetService:
		h.handleGetService(req)
	case RequestRegisterProvider:
		h.handleRegisterProvider(req, handles)
	case RequestListServices:
		h.handleListServices()
	case RequestPing:
		h.reply(SuccessResponse(), nil)
	default:
		h.reply(ErrorResponse(ResponseInvalidRequest), nil)
	}

	return true
}

func (h *Handler) handleGetService(req Request) {
	ep, err := h.provider.Resolve(req.Name)
	if err != nil {
		h.reply(ErrorResponse(ResponseNotFound), nil)
		return
	}

	h.reply(SuccessResponse().WithHandle(), ep)
}

func (h *Handler) handleRegisterProvider(req Request, handles []kernel.Handle) {
	if len(handles) == 0 {
		h.reply(ErrorResponse(ResponseInvalidRequest), nil)
		return
	}

	entry, ok := h.handles.GetEntry(handles[0])
	if !ok {
		h.reply(ErrorResponse(ResponseInvalidRequest), nil)
		return
	}

	ep, ok := kernel.Downcast[*kernel.Endpoint](entry.Object)
	if !ok {
		h.reply(ErrorResponse(ResponseInvalidRequest), nil)
		return
	}

	if err := h.provider.Register(req.Name, ep); err != nil {
		h.reply(ErrorResponse(ResponseAlreadyExists), nil)
		return
	}

	h.reply(SuccessResponse(), nil)
}

func (h *Handler) handleListServices() {
	names := h.provider.Names()

	data := []byte{}
	for _, n := range names {
		data = append(data, byte(len(n)))
		data = append(data, n...)
	}

	resp := SuccessResponse()
	resp.DataLen = uint32(len(data))

	h.sendRaw(resp, data, nil)
}

func (h *Handler) reply(resp Response, grant *kernel.Endpoint) {
	var handles []kernel.Handle

	if grant != nil {
		granted := h.handles.Insert(grant, kernel.RightRead|kernel.RightWrite|kernel.RightTransfer)
		handles = []kernel.Handle{granted}
	}

	h.sendRaw(resp, nil, handles)
}

func (h *Handler) sendRaw(resp Response, data []byte, handles []kernel.Handle) {
	payload := append(resp.Encode(), data...)
	_ = h.endpoint.Send(payload, h.handles, handles)
}

// Client is a spawned process's bootstrap convenience wrapper around the
// one endpoint it was born with, mirroring
// original_source/bootstrap/src/client.rs's BootstrapClient.
type Client struct {
	endpoint *kernel.Endpoint
	handles  *kernel.HandleTable
	thread   *kernel.Thread
}

// NewClient wraps the process's bootstrap endpoint.
func NewClient(endpoint *kernel.Endpoint, handles *kernel.HandleTable, thread *kernel.Thread) *Client {
	return &Client{endpoint: endpoint, handles: handles, thread: thread}
}

// GetService requests the channel for a named service, receiving it as a
// transferred handle in the response.
func (c *Client) GetService(name string) (kernel.Handle, error) {
	if len(name) > MaxServiceName {
		return kernel.InvalidHandle, kernel.NewError("bootstrap.get_service", kernel.StatusInvalidArgument, nil)
	}

	req := Request{Type: RequestGetService, Name: name}
	if err := c.endpoint.Send(req.Encode(), c.handles, nil); err != nil {
		return kernel.InvalidHandle, err
	}

	buf := make([]byte, ResponseHeaderSize)

	n, handles, err := c.endpoint.Recv(c.thread, buf, 1, c.handles)
	if err != nil {
		return kernel.InvalidHandle, err
	}

	resp, ok := DecodeResponse(buf[:n])
	if !ok {
		return kernel.InvalidHandle, kernel.NewError("bootstrap.get_service", kernel.StatusInvalidArgument, nil)
	}

	if !resp.IsSuccess() {
		return kernel.InvalidHandle, statusFor(resp.Status)
	}

	if resp.HandleCount == 0 || len(handles) == 0 {
		return kernel.InvalidHandle, kernel.NewError("bootstrap.get_service", kernel.StatusInvalidArgument, nil)
	}

	return handles[0], nil
}

// GetNameServer and friends mirror the original client's named
// convenience wrappers over GetService.
func (c *Client) GetNameServer() (kernel.Handle, error) { return c.GetService(ServiceNameServer) }
func (c *Client) GetBlockServer() (kernel.Handle, error) {
	return c.GetService(ServiceBlockServer)
}
func (c *Client) GetFileSystem() (kernel.Handle, error) { return c.GetService(ServiceFileSystem) }

// RegisterProvider offers channel as the provider endpoint for name.
func (c *Client) RegisterProvider(name string, channel *kernel.Endpoint) error {
	if len(name) > MaxServiceName {
		return kernel.NewError("bootstrap.register_provider", kernel.StatusInvalidArgument, nil)
	}

	h := c.handles.Insert(channel, kernel.RightTransfer)

	req := Request{Type: RequestRegisterProvider, Name: name}
	if err := c.endpoint.Send(req.Encode(), c.handles, []kernel.Handle{h}); err != nil {
		return err
	}

	buf := make([]byte, ResponseHeaderSize)

	n, _, err := c.endpoint.Recv(c.thread, buf, 0, c.handles)
	if err != nil {
		return err
	}

	resp, ok := DecodeResponse(buf[:n])
	if !ok || !resp.IsSuccess() {
		return kernel.NewError("bootstrap.register_provider", kernel.StatusInvalidArgument, nil)
	}

	return nil
}

// Ping checks that the bootstrap peer is alive.
func (c *Client) Ping() error {
	req := Request{Type: RequestPing}
	if err := c.endpoint.Send(req.Encode(), c.handles, nil); err != nil {
		return err
	}

	buf := make([]byte, ResponseHeaderSize)

	n, _, err := c.endpoint.Recv(c.thread, buf, 0, c.handles)
	if err != nil {
		return err
	}

	resp, ok := DecodeResponse(buf[:n])
	if !ok || !resp.IsSuccess() {
		return kernel.NewError("bootstrap.ping", kernel.StatusUnsupported, nil)
	}

	return nil
}

func statusFor(s ResponseStatus) error {
	switch s {
	case ResponseNotFound:
		return kernel.NewError("bootstrap.get_service", kernel.StatusNotFound, nil)
	case ResponsePermissionDenied:
		return kernel.NewError("bootstrap.get_service", kernel.StatusPermissionDenied, nil)
	case ResponseServiceUnavailable:
		return kernel.NewError("bootstrap.get_service", kernel.StatusUnsupported, nil)
	default:
		return kernel.NewError("bootstrap.get_service", kernel.StatusInvalidArgument, nil)
	}
}
