// Package bootstrap implements the handoff by which a freshly spawned
// process asks its parent for named service channels over the one
// channel endpoint it's born with (spec §4/"bootstrap protocol", §6).
package bootstrap

import "encoding/binary"

// Magic identifies a bootstrap frame, grounded on
// original_source/bootstrap/src/protocol.rs's BOOTSTRAP_MAGIC ("BOOT").
const Magic uint32 = 0x424F4F54

// MaxServiceName is the longest name a GetService/RegisterProvider
// request may carry.
const MaxServiceName = 64

// RequestType enumerates the bootstrap operations (spec §6).
type RequestType uint32

const (
	RequestGetService RequestType = iota + 1
	RequestRegisterProvider
	RequestListServices
	RequestPing
)

// ResponseStatus is the bootstrap protocol's own small status enum,
// distinct from the kernel's Status: it travels over the wire as a
// signed 32-bit field rather than a Go error value.
type ResponseStatus int32

const (
	ResponseOK                 ResponseStatus = 0
	ResponseNotFound           ResponseStatus = -1
	ResponseAlreadyExists      ResponseStatus = -2
	ResponsePermissionDenied   ResponseStatus = -3
	ResponseInvalidRequest     ResponseStatus = -4
	ResponseServiceUnavailable ResponseStatus = -5
)

// RequestHeaderSize is the encoded size of Request, excluding the
// variable-length service name that follows it.
const RequestHeaderSize = 16

// Request is the fixed-width header of a bootstrap request, followed by
// name_len bytes of service name (spec §6). Grounded directly on
// original_source/bootstrap/src/protocol.rs's BootstrapRequest.
type Request struct {
	Type RequestType
	Name string
}

// Encode serializes r to the little-endian wire form the bootstrap
// protocol uses: magic, type, name_len, reserved, then the name bytes.
func (r Request) Encode() []byte {
	buf := make([]byte, RequestHeaderSize+len(r.Name))

	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Type))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.Name)))
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	copy(buf[16:], r.Name)

	return buf
}

// DecodeRequest parses a Request from buf, rejecting frames with a bad
// magic, a truncated header, or a name_len that overruns the buffer or
// MaxServiceName.
func DecodeRequest(buf []byte) (Request, bool) {
	if len(buf) < RequestHeaderSize {
		return Request{}, false
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Request{}, false
	}

	typ := RequestType(binary.LittleEndian.Uint32(buf[4:8]))
	nameLen := binary.LittleEndian.Uint32(buf[8:12])

	if nameLen > MaxServiceName || int(RequestHeaderSize+nameLen) > len(buf) {
		return Request{}, false
	}

	name := string(buf[RequestHeaderSize : RequestHeaderSize+nameLen])

	return Request{Type: typ, Name: name}, true
}

// ResponseHeaderSize is the encoded size of Response's fixed header.
const ResponseHeaderSize = 16

// Response is the fixed-width bootstrap response header: magic, status,
// data_len, handle_count (spec §6). A successful GetService carries the
// granted channel as the first transferred handle, not as payload bytes.
type Response struct {
	Status      ResponseStatus
	DataLen     uint32
	HandleCount uint32
}

func SuccessResponse() Response { return Response{Status: ResponseOK} }

func ErrorResponse(status ResponseStatus) Response { return Response{Status: status} }

func (r Response) WithHandle() Response {
	r.HandleCount = 1
	return r
}

func (r Response) IsSuccess() bool { return r.Status == ResponseOK }

// Encode serializes r to its little-endian wire form.
func (r Response) Encode() []byte {
	buf := make([]byte, ResponseHeaderSize)

	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(r.Status)))
	binary.LittleEndian.PutUint32(buf[8:12], r.DataLen)
	binary.LittleEndian.PutUint32(buf[12:16], r.HandleCount)

	return buf
}

// DecodeResponse parses a Response header from buf.
func DecodeResponse(buf []byte) (Response, bool) {
	if len(buf) < ResponseHeaderSize {
		return Response{}, false
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Response{}, false
	}

	status := ResponseStatus(int32(binary.LittleEndian.Uint32(buf[4:8])))
	dataLen := binary.LittleEndian.Uint32(buf[8:12])
	handleCount := binary.LittleEndian.Uint32(buf[12:16])

	return Response{Status: status, DataLen: dataLen, HandleCount: handleCount}, true
}

// Well-known service names, mirroring
// original_source/bootstrap/src/protocol.rs's services module.
const (
	ServiceNameServer  = "NAMESERVER"
	ServiceBlockServer = "BLOCKSERVER"
	ServiceFileSystem  = "FSSERVER"
)
