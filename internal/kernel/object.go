package kernel

// ObjectType tags a kernel object's concrete kind so syscalls can downcast
// from a handle's object reference and fail with BadHandle on mismatch
// (spec §4/"Dynamic dispatch over kernel objects"), mirroring
// kernel/src/object/mod.rs's ObjectType enum.
type ObjectType uint32

const (
	ObjectNone ObjectType = iota
	ObjectProcess
	ObjectThread
	ObjectVmar
	ObjectVmo
	ObjectChannel
	ObjectPort
	ObjectEvent
	ObjectTimer
)

func (t ObjectType) String() string {
	switch t {
	case ObjectProcess:
		return "Process"
	case ObjectThread:
		return "Thread"
	case ObjectVmar:
		return "Vmar"
	case ObjectVmo:
		return "Vmo"
	case ObjectChannel:
		return "Channel"
	case ObjectPort:
		return "Port"
	case ObjectEvent:
		return "Event"
	case ObjectTimer:
		return "Timer"
	default:
		return "None"
	}
}

// Object is the capability set every kernel object variant supports:
// signal query/wait plumbing, a type tag and a downcast hook (spec §3).
type Object interface {
	Type() ObjectType
	Signals() *SignalState
}

// Base is embedded by every concrete kernel object to provide the
// SignalState plumbing without repeating it; it's the Go analog of the
// Rust SignalState field each object variant carries directly.
type Base struct {
	signals SignalState
}

func (b *Base) Signals() *SignalState { return &b.signals }

// Downcast attempts to narrow obj to T, the way get_object_as! does in the
// original kernel -- a syscall handler calls this after a rights-checked
// handle table lookup and returns BadHandle on mismatch.
func Downcast[T Object](obj Object) (T, bool) {
	t, ok := obj.(T)
	return t, ok
}
