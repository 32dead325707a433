package kernel

import "testing"

func TestDowncast_MatchesConcreteType(tt *testing.T) {
	tt.Parallel()

	var obj Object = &fakeObject{typ: ObjectChannel}

	got, ok := Downcast[*fakeObject](obj)
	if !ok || got.typ != ObjectChannel {
		tt.Fatalf("expected downcast to *fakeObject to succeed")
	}
}

func TestDowncast_FailsOnTypeMismatch(tt *testing.T) {
	tt.Parallel()

	var obj Object = &fakeObject{typ: ObjectChannel}

	_, ok := Downcast[*Vmo](obj)
	if ok {
		tt.Fatalf("expected downcast to an unrelated type to fail")
	}
}

func TestObjectType_String(tt *testing.T) {
	tt.Parallel()

	cases := map[ObjectType]string{
		ObjectProcess: "Process",
		ObjectThread:  "Thread",
		ObjectChannel: "Channel",
		ObjectType(99): "None",
	}

	for typ, want := range cases {
		if got := typ.String(); got != want {
			tt.Errorf("ObjectType(%d).String() = %q, want %q", typ, got, want)
		}
	}
}
