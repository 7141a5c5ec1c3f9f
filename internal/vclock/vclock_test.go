package vclock

import (
	"testing"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

func actor(b byte) ids.ActorID {
	var a ids.ActorID
	for i := range a {
		a[i] = b
	}
	return a
}

func TestUpdateTracksMax(t *testing.T) {
	vc := New()
	a := actor(1)

	vc.Update(a, hlc.HLC{WallMS: 100, Counter: 0})
	got, _ := vc.Get(a)
	if got != (hlc.HLC{100, 0}) {
		t.Fatalf("got %+v", got)
	}

	vc.Update(a, hlc.HLC{WallMS: 200, Counter: 0})
	got, _ = vc.Get(a)
	if got != (hlc.HLC{200, 0}) {
		t.Fatalf("got %+v", got)
	}

	vc.Update(a, hlc.HLC{WallMS: 300, Counter: 5})
	got, _ = vc.Get(a)
	if got != (hlc.HLC{300, 5}) {
		t.Fatalf("got %+v", got)
	}

	// Lower HLC should not regress the max.
	vc.Update(a, hlc.HLC{WallMS: 150, Counter: 0})
	got, _ = vc.Get(a)
	if got != (hlc.HLC{300, 5}) {
		t.Fatalf("regressed: got %+v", got)
	}

	vc.Update(a, hlc.HLC{WallMS: 300, Counter: 2})
	got, _ = vc.Get(a)
	if got != (hlc.HLC{300, 5}) {
		t.Fatalf("regressed: got %+v", got)
	}

	vc.Update(a, hlc.HLC{WallMS: 300, Counter: 10})
	got, _ = vc.Get(a)
	if got != (hlc.HLC{300, 10}) {
		t.Fatalf("got %+v", got)
	}
}

func TestMergeTakesMax(t *testing.T) {
	a, b, c := actor(1), actor(2), actor(3)

	clock1 := New()
	clock1.Update(a, hlc.HLC{100, 0})
	clock1.Update(b, hlc.HLC{200, 0})

	clock2 := New()
	clock2.Update(a, hlc.HLC{50, 0})
	clock2.Update(b, hlc.HLC{300, 0})
	clock2.Update(c, hlc.HLC{400, 0})

	clock1.Merge(clock2)

	if got, _ := clock1.Get(a); got != (hlc.HLC{100, 0}) {
		t.Fatalf("actor a: got %+v", got)
	}
	if got, _ := clock1.Get(b); got != (hlc.HLC{300, 0}) {
		t.Fatalf("actor b: got %+v", got)
	}
	if got, _ := clock1.Get(c); got != (hlc.HLC{400, 0}) {
		t.Fatalf("actor c: got %+v", got)
	}
}

func TestDiffFindsMissing(t *testing.T) {
	a, b, c := actor(1), actor(2), actor(3)

	clockA := New()
	clockA.Update(a, hlc.HLC{100, 0})
	clockA.Update(b, hlc.HLC{200, 0})

	clockB := New()
	clockB.Update(a, hlc.HLC{100, 0})
	clockB.Update(b, hlc.HLC{300, 0})
	clockB.Update(c, hlc.HLC{400, 0})

	diff := clockA.Diff(clockB)
	if len(diff) != 2 {
		t.Fatalf("expected 2 diff entries, got %d: %+v", len(diff), diff)
	}
	for _, e := range diff {
		switch e.Actor {
		case b:
			if !e.Known || e.HLC != (hlc.HLC{200, 0}) {
				t.Fatalf("actor b entry wrong: %+v", e)
			}
		case c:
			if e.Known {
				t.Fatalf("actor c entry should be unknown: %+v", e)
			}
		case a:
			t.Fatalf("actor a should not be in diff")
		}
	}
}

func TestCoversDetectsCompleteness(t *testing.T) {
	a, b, c := actor(1), actor(2), actor(3)

	full := New()
	full.Update(a, hlc.HLC{100, 0})
	full.Update(b, hlc.HLC{200, 0})
	full.Update(c, hlc.HLC{300, 0})

	partial := New()
	partial.Update(a, hlc.HLC{100, 0})
	partial.Update(b, hlc.HLC{200, 0})

	if !full.Covers(partial) {
		t.Fatal("full should cover partial")
	}
	if partial.Covers(full) {
		t.Fatal("partial should not cover full")
	}
	if !full.Covers(full) {
		t.Fatal("a clock covers itself")
	}

	empty := New()
	if !full.Covers(empty) {
		t.Fatal("full should cover empty")
	}
	if !empty.Covers(empty) {
		t.Fatal("empty covers itself")
	}
	if empty.Covers(full) {
		t.Fatal("empty should not cover full")
	}
}

func TestMsgpackRoundtrip(t *testing.T) {
	a, b := actor(1), actor(2)
	vc := New()
	vc.Update(a, hlc.HLC{100, 1})
	vc.Update(b, hlc.HLC{200, 2})

	encoded, err := vc.MarshalMsgpack()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalMsgpack(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := decoded.Get(a); got != (hlc.HLC{100, 1}) {
		t.Fatalf("actor a: got %+v", got)
	}
	if got, _ := decoded.Get(b); got != (hlc.HLC{200, 2}) {
		t.Fatalf("actor b: got %+v", got)
	}

	// Re-encoding must be byte-identical (deterministic order) since bundle
	// signatures cover this encoding.
	again, err := decoded.MarshalMsgpack()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(encoded) {
		t.Fatal("msgpack encoding is not deterministic across roundtrip")
	}
}
