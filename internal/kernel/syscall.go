package kernel

import (
	"time"
	"unsafe"
)

// SyscallNo numbers the single fast-syscall entry point's multiplexer
// (spec §4.7/§6): "Single numbered entry... Selected numbers cover
// SYS_LOG, SYS_HANDLE_CLOSE/DUPLICATE, ...".
type SyscallNo uint64

const (
	SysLog SyscallNo = iota + 1
	SysHandleClose
	SysHandleDuplicate
	SysPortCreate
	SysPortWait
	SysPortBind
	SysPortUnbind
	SysPortQueue
	SysChannelCreate
	SysChannelSend
	SysChannelRecv
	SysChannelTryRecv
	SysClockGet
	SysNanosleep
	SysProcessCreate
	SysProcessStart
	SysProcessWait
	SysProcessGetInitHandle
	SysProcessGetVmarHandle
	SysThreadCreate
	SysExit
	SysVmoCreate
	SysVmoCreatePhysical
	SysVmoCreateChild
	SysVmoRead
	SysVmoWrite
	SysVmoGetSize
	SysVmoSetSize
	SysVmoGetPhys
	SysVmarMap
	SysVmarUnmap
	SysVmarProtect
	SysYield
	SysKresGetRSDP
	SysFutexWait
	SysFutexWake
)

// Frame is the register frame pushed on syscall entry (spec §4.7): "a
// full register frame is pushed, the dispatcher is called with a
// pointer to that frame, results are muxed back into the frame's return
// register". Six general argument slots mirror the calling convention
// used by the other fast-syscall examples in the pack (biscuit's
// trapstub, gokvm's machine/state.go).
type Frame struct {
	No         SyscallNo
	Arg0, Arg1 uintptr
	Arg2, Arg3 uintptr
	Arg4, Arg5 uintptr
	Ret        uintptr
}

// Dispatcher routes a Frame to its handler and mutes the result back
// into Frame.Ret via Mux (spec §4.7 C7). Its only state is the futex
// table shared by SYS_FUTEX_WAIT/WAKE; every other handler works on the
// calling thread's process, which owns the handle table and VMAR the
// syscall actually operates on.
type Dispatcher struct {
	futex *FutexTable
}

// NewDispatcher creates a ready-to-use syscall dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{futex: NewFutexTable()}
}

// Dispatch executes the syscall named by f.No on behalf of t and writes
// the muxed return value into f.Ret.
func (d *Dispatcher) Dispatch(t *Thread, f *Frame) {
	proc := t.Process()
	val, err := d.call(t, proc, f)
	f.Ret = Mux(val, err)
}

func (d *Dispatcher) call(t *Thread, proc *Process, f *Frame) (uintptr, error) {
	switch f.No {
	case SysLog:
		return d.sysLog(proc, f)
	case SysHandleClose:
		return d.sysHandleClose(proc, f)
	case SysHandleDuplicate:
		return d.sysHandleDuplicate(proc, f)
	case SysPortCreate:
		return d.sysPortCreate(proc, f)
	case SysPortWait:
		return d.sysPortWait(t, proc, f)
	case SysPortBind:
		return d.sysPortBind(proc, f)
	case SysPortUnbind:
		return d.sysPortUnbind(proc, f)
	case SysPortQueue:
		return d.sysPortQueue(proc, f)
	case SysChannelCreate:
		return d.sysChannelCreate(proc, f)
	case SysChannelSend:
		return d.sysChannelSend(proc, f)
	case SysChannelRecv:
		return d.sysChannelRecv(t, proc, f)
	case SysChannelTryRecv:
		return d.sysChannelTryRecv(proc, f)
	case SysClockGet:
		return d.sysClockGet(f)
	case SysNanosleep:
		return d.sysNanosleep(t, f)
	case SysProcessGetInitHandle:
		return d.sysProcessGetInitHandle(proc, f)
	case SysProcessGetVmarHandle:
		return d.sysProcessGetVmarHandle(proc, f)
	case SysExit:
		return 0, nil // the caller's run loop observes ThreadExited on return from entry
	case SysVmoCreate:
		return d.sysVmoCreate(proc, f)
	case SysVmoCreatePhysical:
		return d.sysVmoCreatePhysical(proc, f)
	case SysVmoCreateChild:
		return d.sysVmoCreateChild(proc, f)
	case SysVmoRead:
		return d.sysVmoRead(proc, f)
	case SysVmoWrite:
		return d.sysVmoWrite(proc, f)
	case SysVmoGetSize:
		return d.sysVmoGetSize(proc, f)
	case SysVmoSetSize:
		return d.sysVmoSetSize(proc, f)
	case SysVmarMap:
		return d.sysVmarMap(proc, f)
	case SysVmarUnmap:
		return d.sysVmarUnmap(proc, f)
	case SysVmarProtect:
		return d.sysVmarProtect(proc, f)
	case SysYield:
		t.Yield()
		return 0, nil
	case SysFutexWait:
		return d.sysFutexWait(t, f)
	case SysFutexWake:
		return d.sysFutexWake(f)
	default:
		return 0, NewError("syscall.dispatch", StatusUnsupported, nil)
	}
}

func (d *Dispatcher) sysLog(proc *Process, f *Frame) (uintptr, error) {
	ptr := (*byte)(unsafe.Pointer(f.Arg0))
	n := int(f.Arg1)

	if ptr == nil || n < 0 {
		return 0, NewError("syscall.log", StatusInvalidArgument, nil)
	}

	msg := unsafe.Slice(ptr, n)
	logEmit(proc, string(msg))

	return uintptr(n), nil
}

func (d *Dispatcher) sysHandleClose(proc *Process, f *Frame) (uintptr, error) {
	h := Handle(f.Arg0)
	if _, ok := proc.Handles().Remove(h); !ok {
		return 0, NewError("syscall.handle_close", StatusBadHandle, nil)
	}

	return 0, nil
}

func (d *Dispatcher) sysHandleDuplicate(proc *Process, f *Frame) (uintptr, error) {
	h := Handle(f.Arg0)
	rights := Rights(f.Arg1)

	dup, err := proc.Handles().Duplicate(h, rights)
	if err != nil {
		return 0, err
	}

	return uintptr(dup), nil
}

func (d *Dispatcher) sysPortCreate(proc *Process, f *Frame) (uintptr, error) {
	p := NewPort()
	h := proc.Handles().Insert(p, RightRead|RightWrite|RightDuplicate|RightTransfer)

	return uintptr(h), nil
}

func (d *Dispatcher) sysPortWait(t *Thread, proc *Process, f *Frame) (uintptr, error) {
	h := Handle(f.Arg0)

	obj, err := proc.Handles().Get(h, RightRead)
	if err != nil {
		return 0, err
	}

	port, ok := Downcast[*Port](obj)
	if !ok {
		return 0, NewError("syscall.port_wait", StatusInvalidArgument, nil)
	}

	buf := make([]Packet, int(f.Arg2))
	timeoutNs := int64(f.Arg3)

	var deadline Deadline
	if timeoutNs < 0 {
		deadline = InfiniteDeadline()
	} else {
		deadline = AbsoluteDeadline(time.Now().Add(time.Duration(timeoutNs)))
	}

	n := port.Wait(t, buf, deadline)
	if n == 0 {
		return 0, NewError("syscall.port_wait", StatusTimedOut, nil)
	}

	out := (*Packet)(unsafe.Pointer(f.Arg1))
	dst := unsafe.Slice(out, n)
	copy(dst, buf[:n])

	return uintptr(n), nil
}

func (d *Dispatcher) sysPortBind(proc *Process, f *Frame) (uintptr, error) {
	portH := Handle(f.Arg0)
	objH := Handle(f.Arg1)
	key := uint64(f.Arg2)
	mask := Signals(f.Arg3)
	mode := BindMode(f.Arg4)

	portObj, err := proc.Handles().Get(portH, RightWrite)
	if err != nil {
		return 0, err
	}

	port, ok := Downcast[*Port](portObj)
	if !ok {
		return 0, NewError("syscall.port_bind", StatusInvalidArgument, nil)
	}

	target, err := proc.Handles().Get(objH, RightRead)
	if err != nil {
		return 0, err
	}

	port.Bind(key, target, mask, mode)

	return 0, nil
}

func (d *Dispatcher) sysPortUnbind(proc *Process, f *Frame) (uintptr, error) {
	portH := Handle(f.Arg0)
	objH := Handle(f.Arg1)
	key := uint64(f.Arg2)

	portObj, err := proc.Handles().Get(portH, RightWrite)
	if err != nil {
		return 0, err
	}

	port, ok := Downcast[*Port](portObj)
	if !ok {
		return 0, NewError("syscall.port_unbind", StatusInvalidArgument, nil)
	}

	target, err := proc.Handles().Get(objH, RightRead)
	if err != nil {
		return 0, err
	}

	port.Unbind(key, target)

	return 0, nil
}

func (d *Dispatcher) sysPortQueue(proc *Process, f *Frame) (uintptr, error) {
	portH := Handle(f.Arg0)
	key := uint64(f.Arg1)

	portObj, err := proc.Handles().Get(portH, RightWrite)
	if err != nil {
		return 0, err
	}

	port, ok := Downcast[*Port](portObj)
	if !ok {
		return 0, NewError("syscall.port_queue", StatusInvalidArgument, nil)
	}

	var payload [UserPacketSize]byte

	src := (*byte)(unsafe.Pointer(f.Arg2))
	if src != nil {
		copy(payload[:], unsafe.Slice(src, UserPacketSize))
	}

	port.QueueUser(key, payload)

	return 0, nil
}

func (d *Dispatcher) sysChannelCreate(proc *Process, f *Frame) (uintptr, error) {
	a, b := NewChannelPair()

	ha := proc.Handles().Insert(a, RightRead|RightWrite|RightTransfer)
	hb := proc.Handles().Insert(b, RightRead|RightWrite|RightTransfer)

	out := (*[2]Handle)(unsafe.Pointer(f.Arg0))
	out[0] = ha
	out[1] = hb

	return 0, nil
}

func (d *Dispatcher) sysChannelSend(proc *Process, f *Frame) (uintptr, error) {
	h := Handle(f.Arg0)

	obj, err := proc.Handles().Get(h, RightWrite)
	if err != nil {
		return 0, err
	}

	ep, ok := Downcast[*Endpoint](obj)
	if !ok {
		return 0, NewError("syscall.channel_send", StatusInvalidArgument, nil)
	}

	data := readBytes(f.Arg1, int(f.Arg2))
	handles := readHandles(f.Arg3, int(f.Arg4))

	if err := ep.Send(data, proc.Handles(), handles); err != nil {
		return 0, err
	}

	return 0, nil
}

func (d *Dispatcher) sysChannelRecv(t *Thread, proc *Process, f *Frame) (uintptr, error) {
	return d.channelRecv(t, proc, f, true)
}

func (d *Dispatcher) sysChannelTryRecv(proc *Process, f *Frame) (uintptr, error) {
	return d.channelRecv(nil, proc, f, false)
}

func (d *Dispatcher) channelRecv(t *Thread, proc *Process, f *Frame, blocking bool) (uintptr, error) {
	h := Handle(f.Arg0)

	obj, err := proc.Handles().Get(h, RightRead)
	if err != nil {
		return 0, err
	}

	ep, ok := Downcast[*Endpoint](obj)
	if !ok {
		return 0, NewError("syscall.channel_recv", StatusInvalidArgument, nil)
	}

	dataBuf := make([]byte, int(f.Arg2))
	handleCap := int(f.Arg4)

	var (
		n  int
		hs []Handle
	)

	if blocking {
		n, hs, err = ep.Recv(t, dataBuf, handleCap, proc.Handles())
	} else {
		n, hs, err = ep.TryRecv(dataBuf, handleCap, proc.Handles())
	}

	if err != nil {
		return 0, err
	}

	dst := (*byte)(unsafe.Pointer(f.Arg1))
	copy(unsafe.Slice(dst, n), dataBuf[:n])

	out := (*Handle)(unsafe.Pointer(f.Arg3))
	copy(unsafe.Slice(out, len(hs)), hs)

	return uintptr(n), nil
}

func (d *Dispatcher) sysClockGet(f *Frame) (uintptr, error) {
	return uintptr(MonotonicNow()), nil
}

func (d *Dispatcher) sysNanosleep(t *Thread, f *Frame) (uintptr, error) {
	ns := int64(f.Arg0)
	if ns <= 0 {
		return 0, nil
	}

	time.Sleep(time.Duration(ns))

	return 0, nil
}

func (d *Dispatcher) sysProcessGetInitHandle(proc *Process, f *Frame) (uintptr, error) {
	ep, err := proc.TakeBootstrap()
	if err != nil {
		return 0, err
	}

	h := proc.Handles().Insert(ep, RightRead|RightWrite|RightTransfer)

	return uintptr(h), nil
}

func (d *Dispatcher) sysProcessGetVmarHandle(proc *Process, f *Frame) (uintptr, error) {
	h := proc.Handles().Insert(proc.RootVmar(), RightRead|RightWrite|RightDuplicate)

	return uintptr(h), nil
}

func (d *Dispatcher) sysVmoCreate(proc *Process, f *Frame) (uintptr, error) {
	size := uint64(f.Arg0)
	opts := VmoOptions(f.Arg1)

	vmo, err := CreateVmo(size, opts)
	if err != nil {
		return 0, err
	}

	h := proc.Handles().Insert(vmo, RightRead|RightWrite|RightDuplicate|RightTransfer)

	return uintptr(h), nil
}

func (d *Dispatcher) sysVmoCreatePhysical(proc *Process, f *Frame) (uintptr, error) {
	base := uint64(f.Arg0)
	size := uint64(f.Arg1)

	vmo, err := CreatePhysicalVmo(base, size)
	if err != nil {
		return 0, err
	}

	h := proc.Handles().Insert(vmo, RightRead|RightWrite|RightDuplicate|RightTransfer)

	return uintptr(h), nil
}

func (d *Dispatcher) sysVmoCreateChild(proc *Process, f *Frame) (uintptr, error) {
	h := Handle(f.Arg0)
	offset := uint64(f.Arg1)
	length := uint64(f.Arg2)

	obj, err := proc.Handles().Get(h, RightRead)
	if err != nil {
		return 0, err
	}

	parent, ok := Downcast[*Vmo](obj)
	if !ok {
		return 0, NewError("syscall.vmo_create_child", StatusInvalidArgument, nil)
	}

	child, err := CreateChildVmo(parent, offset, length)
	if err != nil {
		return 0, err
	}

	ch := proc.Handles().Insert(child, RightRead|RightWrite|RightDuplicate|RightTransfer)

	return uintptr(ch), nil
}

func vmoFromHandle(proc *Process, h Handle, rights Rights) (*Vmo, error) {
	obj, err := proc.Handles().Get(h, rights)
	if err != nil {
		return nil, err
	}

	vmo, ok := Downcast[*Vmo](obj)
	if !ok {
		return nil, NewError("syscall.vmo", StatusInvalidArgument, nil)
	}

	return vmo, nil
}

func (d *Dispatcher) sysVmoRead(proc *Process, f *Frame) (uintptr, error) {
	vmo, err := vmoFromHandle(proc, Handle(f.Arg0), RightRead)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, int(f.Arg2))

	n, err := vmo.Read(uint64(f.Arg1), buf)
	if err != nil {
		return 0, err
	}

	dst := (*byte)(unsafe.Pointer(f.Arg3))
	copy(unsafe.Slice(dst, n), buf[:n])

	return uintptr(n), nil
}

func (d *Dispatcher) sysVmoWrite(proc *Process, f *Frame) (uintptr, error) {
	vmo, err := vmoFromHandle(proc, Handle(f.Arg0), RightWrite)
	if err != nil {
		return 0, err
	}

	data := readBytes(f.Arg2, int(f.Arg3))

	n, err := vmo.Write(uint64(f.Arg1), data)
	if err != nil {
		return 0, err
	}

	return uintptr(n), nil
}

func (d *Dispatcher) sysVmoGetSize(proc *Process, f *Frame) (uintptr, error) {
	vmo, err := vmoFromHandle(proc, Handle(f.Arg0), RightRead)
	if err != nil {
		return 0, err
	}

	return uintptr(vmo.Size()), nil
}

func (d *Dispatcher) sysVmoSetSize(proc *Process, f *Frame) (uintptr, error) {
	vmo, err := vmoFromHandle(proc, Handle(f.Arg0), RightWrite)
	if err != nil {
		return 0, err
	}

	if err := vmo.SetSize(uint64(f.Arg1)); err != nil {
		return 0, err
	}

	return 0, nil
}

func (d *Dispatcher) sysVmarMap(proc *Process, f *Frame) (uintptr, error) {
	vmarH := Handle(f.Arg0)
	vmoH := Handle(f.Arg1)
	offset := uint64(f.Arg2)
	length := uint64(f.Arg3)
	flags := MapFlags(f.Arg4)

	vmarObj, err := proc.Handles().Get(vmarH, RightWrite)
	if err != nil {
		return 0, err
	}

	vmar, ok := Downcast[*Vmar](vmarObj)
	if !ok {
		return 0, NewError("syscall.vmar_map", StatusInvalidArgument, nil)
	}

	vmoObj, err := proc.Handles().Get(vmoH, RightRead)
	if err != nil {
		return 0, err
	}

	vmo, ok := Downcast[*Vmo](vmoObj)
	if !ok {
		return 0, NewError("syscall.vmar_map", StatusInvalidArgument, nil)
	}

	va, err := vmar.Map(vmo, offset, length, flags, uint64(f.Arg5))
	if err != nil {
		return 0, err
	}

	return uintptr(va), nil
}

func (d *Dispatcher) sysVmarUnmap(proc *Process, f *Frame) (uintptr, error) {
	vmarH := Handle(f.Arg0)

	obj, err := proc.Handles().Get(vmarH, RightWrite)
	if err != nil {
		return 0, err
	}

	vmar, ok := Downcast[*Vmar](obj)
	if !ok {
		return 0, NewError("syscall.vmar_unmap", StatusInvalidArgument, nil)
	}

	if err := vmar.Unmap(uint64(f.Arg1), uint64(f.Arg2)); err != nil {
		return 0, err
	}

	return 0, nil
}

func (d *Dispatcher) sysVmarProtect(proc *Process, f *Frame) (uintptr, error) {
	vmarH := Handle(f.Arg0)

	obj, err := proc.Handles().Get(vmarH, RightWrite)
	if err != nil {
		return 0, err
	}

	vmar, ok := Downcast[*Vmar](obj)
	if !ok {
		return 0, NewError("syscall.vmar_protect", StatusInvalidArgument, nil)
	}

	if err := vmar.Protect(uint64(f.Arg1), uint64(f.Arg2), MapFlags(f.Arg3)); err != nil {
		return 0, err
	}

	return 0, nil
}

func (d *Dispatcher) sysFutexWait(t *Thread, f *Frame) (uintptr, error) {
	addr := f.Arg0
	expect := uint32(f.Arg1)
	timeoutNs := int64(f.Arg2)

	var deadline Deadline
	if timeoutNs < 0 {
		deadline = InfiniteDeadline()
	} else {
		deadline = AbsoluteDeadline(time.Now().Add(time.Duration(timeoutNs)))
	}

	if err := d.futex.Wait(t, addr, expect, deadline); err != nil {
		return 0, err
	}

	return 0, nil
}

func (d *Dispatcher) sysFutexWake(f *Frame) (uintptr, error) {
	addr := f.Arg0
	n := int(f.Arg1)

	woken := d.futex.Wake(addr, n)

	return uintptr(woken), nil
}

func readBytes(ptr uintptr, n int) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}

	p := (*byte)(unsafe.Pointer(ptr))

	return unsafe.Slice(p, n)
}

func readHandles(ptr uintptr, n int) []Handle {
	if ptr == 0 || n == 0 {
		return nil
	}

	p := (*Handle)(unsafe.Pointer(ptr))

	return unsafe.Slice(p, n)
}

// logEmit receives SYS_LOG messages. It is a no-op until SetLogEmit
// installs a sink, so the dispatcher never depends directly on
// internal/log.
var logEmit = func(proc *Process, msg string) {}

// SetLogEmit installs the function SYS_LOG forwards decoded messages to.
func SetLogEmit(fn func(proc *Process, msg string)) {
	logEmit = fn
}
