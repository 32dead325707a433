package kernel

import "testing"

type fakeObject struct {
	Base
	typ ObjectType
}

func (f *fakeObject) Type() ObjectType { return f.typ }

func TestHandleTable_InsertGet(tt *testing.T) {
	tt.Parallel()

	tbl := NewHandleTable()
	obj := &fakeObject{typ: ObjectChannel}

	h := tbl.Insert(obj, RightsBasic)
	if !h.Valid() {
		tt.Fatalf("expected valid handle, got %v", h)
	}

	got, err := tbl.Get(h, RightRead)
	if err != nil {
		tt.Fatalf("Get: %v", err)
	}

	if got != obj {
		tt.Fatalf("Get returned wrong object")
	}

	if _, err := tbl.Get(h, RightManage); err == nil {
		tt.Fatalf("expected BadHandle for missing right")
	}
}

func TestHandleTable_GetMissing(tt *testing.T) {
	tt.Parallel()

	tbl := NewHandleTable()

	if _, err := tbl.Get(InvalidHandle, RightRead); err == nil {
		tt.Fatalf("expected error for invalid handle")
	}

	if _, err := tbl.Get(Handle(99), RightRead); err == nil {
		tt.Fatalf("expected error for unknown handle")
	}
}

func TestHandleTable_NeverRecycled(tt *testing.T) {
	tt.Parallel()

	tbl := NewHandleTable()
	obj := &fakeObject{typ: ObjectPort}

	h1 := tbl.Insert(obj, RightsBasic)
	tbl.Remove(h1)

	h2 := tbl.Insert(obj, RightsBasic)
	if h2 == h1 {
		tt.Fatalf("expected fresh handle id, got reused %v", h2)
	}

	if _, err := tbl.Get(h1, RightRead); err == nil {
		tt.Fatalf("stale handle %v should not resolve after removal", h1)
	}
}

func TestHandleTable_Duplicate(tt *testing.T) {
	tt.Parallel()

	tbl := NewHandleTable()
	obj := &fakeObject{typ: ObjectVmo}

	h := tbl.Insert(obj, RightRead|RightWrite|RightDuplicate)

	dup, err := tbl.Duplicate(h, RightRead)
	if err != nil {
		tt.Fatalf("Duplicate: %v", err)
	}

	e, ok := tbl.GetEntry(dup)
	if !ok {
		tt.Fatalf("duplicated handle not present")
	}

	if e.Rights.Has(RightWrite) {
		tt.Fatalf("duplicate rights should be intersected with newRights, got %v", e.Rights)
	}

	noDup := tbl.Insert(obj, RightRead)
	if _, err := tbl.Duplicate(noDup, RightRead); err == nil {
		tt.Fatalf("expected error duplicating a handle without DUPLICATE right")
	}
}

func TestHandleTable_TransferManyAllOrNothing(tt *testing.T) {
	tt.Parallel()

	tbl := NewHandleTable()

	good := tbl.Insert(&fakeObject{typ: ObjectChannel}, RightTransfer)
	bad := tbl.Insert(&fakeObject{typ: ObjectChannel}, RightRead)

	if _, err := tbl.TransferMany([]Handle{good, bad}); err == nil {
		tt.Fatalf("expected TransferMany to fail when one handle lacks TRANSFER")
	}

	if _, ok := tbl.GetEntry(good); !ok {
		tt.Fatalf("handle %v should not have been removed on partial failure", good)
	}

	entries, err := tbl.TransferMany([]Handle{good})
	if err != nil {
		tt.Fatalf("TransferMany: %v", err)
	}

	if len(entries) != 1 {
		tt.Fatalf("expected 1 transferred entry, got %d", len(entries))
	}

	if _, ok := tbl.GetEntry(good); ok {
		tt.Fatalf("transferred handle should be removed from source table")
	}
}

func TestHandleTable_ReceiveMany(tt *testing.T) {
	tt.Parallel()

	src := NewHandleTable()
	dst := NewHandleTable()

	h := src.Insert(&fakeObject{typ: ObjectPort}, RightRead|RightTransfer)

	entries, err := src.TransferMany([]Handle{h})
	if err != nil {
		tt.Fatalf("TransferMany: %v", err)
	}

	newHandles := dst.ReceiveMany(entries)
	if len(newHandles) != 1 {
		tt.Fatalf("expected 1 received handle, got %d", len(newHandles))
	}

	e, ok := dst.GetEntry(newHandles[0])
	if !ok || e.Rights != (RightRead|RightTransfer) {
		tt.Fatalf("received entry rights not preserved: %+v", e)
	}
}

func TestHandleTable_ClearAndLen(tt *testing.T) {
	tt.Parallel()

	tbl := NewHandleTable()
	tbl.Insert(&fakeObject{typ: ObjectVmar}, RightsBasic)
	tbl.Insert(&fakeObject{typ: ObjectVmar}, RightsBasic)

	if tbl.Len() != 2 {
		tt.Fatalf("expected Len 2, got %d", tbl.Len())
	}

	dropped := tbl.Clear()
	if len(dropped) != 2 {
		tt.Fatalf("expected 2 dropped entries, got %d", len(dropped))
	}

	if tbl.Len() != 0 {
		tt.Fatalf("expected empty table after Clear, got len %d", tbl.Len())
	}
}
