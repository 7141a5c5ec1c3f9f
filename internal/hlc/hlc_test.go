package hlc

import "testing"

func TestTickMonotonicity(t *testing.T) {
	c := New()
	prev := c.Tick()
	for i := 0; i < 100; i++ {
		next := c.Tick()
		if !prev.Less(next) {
			t.Fatalf("expected %v < %v", prev, next)
		}
		prev = next
	}
}

func TestSameWallTimeIncrementsCounter(t *testing.T) {
	c := New()
	future := physicalNowMS() + 100_000
	c.wallMS = future
	c.counter = 0

	t1 := c.Tick()
	if t1.WallMS != future || t1.Counter != 1 {
		t.Fatalf("t1 = %+v, want wall=%d counter=1", t1, future)
	}
	t2 := c.Tick()
	if t2.WallMS != future || t2.Counter != 2 {
		t.Fatalf("t2 = %+v, want wall=%d counter=2", t2, future)
	}
	t3 := c.Tick()
	if t3.WallMS != future || t3.Counter != 3 {
		t.Fatalf("t3 = %+v, want wall=%d counter=3", t3, future)
	}
}

func TestByteRoundtrip(t *testing.T) {
	h := HLC{WallMS: 1_700_000_000_000, Counter: 42}
	b := h.Bytes()
	got, err := FromBytes(b[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestOrderingMatchesBytes(t *testing.T) {
	pairs := []struct{ a, b HLC }{
		{HLC{100, 0}, HLC{200, 0}},
		{HLC{100, 0}, HLC{100, 1}},
		{HLC{100, 999}, HLC{101, 0}},
		{HLC{0, 0}, HLC{0, 1}},
	}
	for _, p := range pairs {
		if !p.a.Less(p.b) {
			t.Fatalf("expected %+v < %+v", p.a, p.b)
		}
		ba, bb := p.a.Bytes(), p.b.Bytes()
		cmp := 0
		for i := range ba {
			if ba[i] != bb[i] {
				if ba[i] < bb[i] {
					cmp = -1
				} else {
					cmp = 1
				}
				break
			}
		}
		if cmp != p.a.Compare(p.b) {
			t.Fatalf("Compare disagrees with byte order for %+v vs %+v", p.a, p.b)
		}
	}
}

func TestDriftRejection(t *testing.T) {
	c := New()
	now := physicalNowMS()
	remote := HLC{WallMS: now + MaxDriftMS + 1, Counter: 0}
	_, err := c.Receive(remote)
	if err == nil {
		t.Fatal("expected drift error")
	}
	de, ok := err.(*DriftError)
	if !ok {
		t.Fatalf("expected *DriftError, got %T", err)
	}
	if de.DeltaMS <= MaxDriftMS || de.MaxMS != MaxDriftMS {
		t.Fatalf("unexpected drift error: %+v", de)
	}
}

func TestWithinDriftAccepted(t *testing.T) {
	c := New()
	now := physicalNowMS()
	remote := HLC{WallMS: now + MaxDriftMS, Counter: 5}
	got, err := c.Receive(remote)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !remote.Less(got) {
		t.Fatalf("expected result %v > remote %v", got, remote)
	}
}

func TestConcurrentTimestampMerging(t *testing.T) {
	c := New()
	local := c.Tick()
	remote := HLC{WallMS: local.WallMS + 1, Counter: 10}

	merged, err := c.Receive(remote)
	if err != nil {
		t.Fatal(err)
	}
	if !local.Less(merged) {
		t.Fatalf("merged %v should be > local %v", merged, local)
	}
	if !remote.Less(merged) {
		t.Fatalf("merged %v should be > remote %v", merged, remote)
	}
}
