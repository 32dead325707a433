// Package driverproto implements the request/response framing every
// driver Channel speaks once a client has resolved it through the name
// server or namespace (spec §4.9, "C9 Driver RPC framing"). The framing
// carries an op code and byte/handle payloads; what an op code means is
// left to the service on the other end, matching the original's
// libdriver split between MessageHeader/Request/Response (transport)
// and each driver's own protocol.rs (semantics) — e.g.
// original_source/drivers/block_protocol/src/protocol.rs's
// DriverOp::Read/Write over this same header shape.
package driverproto

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// DriverOp is the operation code carried in every frame header. The
// values below cover the generic ops every driver channel supports;
// service-specific ops start at OpUserDefined.
type DriverOp uint32

const (
	OpOpen DriverOp = iota
	OpClose
	OpRead
	OpWrite
	OpUserDefined DriverOp = 0x1000
)

// HeaderSize is the fixed, wire-stable size of a frame header: a 16-byte
// request id, a 4-byte op code, and two 4-byte length fields.
const HeaderSize = 16 + 4 + 4 + 4

// ErrFrame is wrapped by every decoding error this package returns.
var ErrFrame = errors.New("driverproto: malformed frame")

// Header is the fixed layout preceding every driver message's payload.
// RequestID is minted per request with google/uuid (the same scheme
// internal/nameserver uses for watcher ids) rather than an atomic
// counter, since a driver Channel may be shared by several concurrent
// callers with no natural sequencing authority between them.
type Header struct {
	RequestID   uuid.UUID
	Op          DriverOp
	DataLen     uint32
	HandleCount uint32
}

// Encode renders h as its wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:16], h.RequestID[:])
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.Op))
	binary.LittleEndian.PutUint32(buf[20:24], h.DataLen)
	binary.LittleEndian.PutUint32(buf[24:28], h.HandleCount)

	return buf
}

// DecodeHeader parses a Header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrFrame
	}

	var h Header

	copy(h.RequestID[:], buf[0:16])
	h.Op = DriverOp(binary.LittleEndian.Uint32(buf[16:20]))
	h.DataLen = binary.LittleEndian.Uint32(buf[20:24])
	h.HandleCount = binary.LittleEndian.Uint32(buf[24:28])

	return h, nil
}

// Request is one client->driver message: a header plus its data payload.
// Transferred handles travel alongside the frame on the Channel itself
// (spec §4.4), not inside Data, so Request carries no handle slice of
// its own — the caller reads them off Channel.Recv's own return.
type Request struct {
	Header Header
	Data   []byte
}

// NewRequest builds a request frame for op carrying data, minting a
// fresh request id and filling in DataLen.
func NewRequest(op DriverOp, data []byte, handleCount int) Request {
	return Request{
		Header: Header{
			RequestID:   uuid.New(),
			Op:          op,
			DataLen:     uint32(len(data)),
			HandleCount: uint32(handleCount),
		},
		Data: data,
	}
}

// Encode renders the request as header-then-data bytes, ready to pass
// to Channel.Send.
func (r Request) Encode() []byte {
	return append(r.Header.Encode(), r.Data...)
}

// DecodeRequest splits buf into a request header and the data payload
// that follows it.
func DecodeRequest(buf []byte) (Request, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Request{}, err
	}

	body := buf[HeaderSize:]
	if uint32(len(body)) < h.DataLen {
		return Request{}, ErrFrame
	}

	return Request{Header: h, Data: body[:h.DataLen]}, nil
}

// Status is the response outcome, a small subset of the kernel's own
// errno space relevant to driver RPC (original_source/libdriver's
// DriverError, re-cast as plain integers rather than an enum with a
// catch-all SystemError(i32) variant, since Go error values already
// carry arbitrary detail without needing one).
type Status int32

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusOutOfMemory
	StatusInvalidHandle
	StatusDisconnected
	StatusTimeout
	StatusBufferTooSmall
	StatusDeviceBusy
	StatusIOError
	StatusPermissionDenied
	StatusNotSupported
)

// Response is one driver->client reply: the request it answers, a
// status, and a data payload. As with Request, transferred handles ride
// the Channel frame itself and aren't part of Data.
type Response struct {
	RequestID uuid.UUID
	Status    Status
	Data      []byte
}

// SuccessResponse builds an OK reply to req carrying data.
func SuccessResponse(req Request, data []byte) Response {
	return Response{RequestID: req.Header.RequestID, Status: StatusOK, Data: data}
}

// ErrorResponse builds a failed reply to req.
func ErrorResponse(req Request, status Status) Response {
	return Response{RequestID: req.Header.RequestID, Status: status}
}

// IsSuccess reports whether the response indicates success.
func (r Response) IsSuccess() bool { return r.Status == StatusOK }

const responseHeaderSize = 16 + 4 + 4

// Encode renders the response as a fixed response header (request id,
// status, data length) followed by the data payload.
func (r Response) Encode() []byte {
	buf := make([]byte, responseHeaderSize)
	copy(buf[0:16], r.RequestID[:])
	binary.LittleEndian.PutUint32(buf[16:20], uint32(r.Status))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(r.Data)))

	return append(buf, r.Data...)
}

// DecodeResponse parses a Response from buf.
func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < responseHeaderSize {
		return Response{}, ErrFrame
	}

	var r Response

	copy(r.RequestID[:], buf[0:16])
	r.Status = Status(int32(binary.LittleEndian.Uint32(buf[16:20])))

	dataLen := binary.LittleEndian.Uint32(buf[20:24])
	body := buf[responseHeaderSize:]

	if uint32(len(body)) < dataLen {
		return Response{}, ErrFrame
	}

	r.Data = body[:dataLen]

	return r, nil
}
