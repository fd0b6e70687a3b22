package position

import (
	"testing"
	"time"
)

func TestTransition_Table(t *testing.T) {
	// rows: current; columns: decision idle, entry, hold, exit
	want := map[Kind][4]Kind{
		Idle:  {Idle, Entry, Idle, Idle},
		Entry: {Hold, Hold, Hold, Exit},
		Hold:  {Hold, Hold, Hold, Exit},
		Exit:  {Idle, Entry, Idle, Idle},
	}

	pairs := 0
	for _, cur := range Kinds {
		for j, dec := range Kinds {
			got := Transition(cur, dec)
			if got != want[cur][j] {
				t.Errorf("Transition(%s, %s) = %s, want %s", cur, dec, got, want[cur][j])
			}
			if got == None {
				t.Errorf("Transition(%s, %s) produced the None sentinel", cur, dec)
			}
			pairs++
		}
	}
	if pairs != 16 {
		t.Fatalf("checked %d pairs, want 16", pairs)
	}
}

func TestTransition_NoneBehavesAsIdle(t *testing.T) {
	for _, dec := range Kinds {
		if Transition(None, dec) != Transition(Idle, dec) {
			t.Errorf("None/%s differs from Idle/%s", dec, dec)
		}
	}
	if Transition(Kind(42), Entry) != Entry {
		t.Error("out-of-range current should behave as None")
	}
}

func TestMerge_OverridesOnlySetFields(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	old := Metadata{}.WithEntryPrice(50).WithEntryTime(ts)
	upd := Metadata{}.WithExitReason(ReasonStopLoss)

	got := Merge(old, upd)
	if p, ok := got.EntryPrice(); !ok || p != 50 {
		t.Errorf("entry price = %v/%v, want 50/true", p, ok)
	}
	if r, ok := got.ExitReason(); !ok || r != ReasonStopLoss {
		t.Errorf("exit reason = %q/%v", r, ok)
	}

	got = Merge(got, Metadata{}.WithEntryPrice(60))
	if p, _ := got.EntryPrice(); p != 60 {
		t.Errorf("entry price after override = %v, want 60", p)
	}
	if old.Equal(got) {
		t.Error("Merge must not mutate its inputs")
	}
	if p, _ := old.EntryPrice(); p != 50 {
		t.Error("original metadata changed")
	}
}

func TestNext_CarriesEntryMetadataUntilExit(t *testing.T) {
	entryMeta := Metadata{}.WithEntryPrice(50).WithShort(false)

	p := Empty.Next(Entry, entryMeta)
	if p.Kind != Entry {
		t.Fatalf("kind = %s, want entry", p.Kind)
	}
	p = p.Next(Idle, Metadata{})
	if p.Kind != Hold {
		t.Fatalf("kind = %s, want hold", p.Kind)
	}
	if price, ok := p.Meta.EntryPrice(); !ok || price != 50 {
		t.Fatalf("hold lost entry price: %v/%v", price, ok)
	}

	p = p.Next(Exit, Metadata{}.WithExitReason(ReasonStrategy))
	if p.Kind != Exit {
		t.Fatalf("kind = %s, want exit", p.Kind)
	}
	if price, _ := p.Meta.EntryPrice(); price != 50 {
		t.Errorf("exit lost entry price: %v", price)
	}
	if r, _ := p.Meta.ExitReason(); r != ReasonStrategy {
		t.Errorf("exit reason = %q", r)
	}
}

func TestNext_IdleAndFreshEntryDropStaleMetadata(t *testing.T) {
	exit := TradePosition{
		Kind: Exit,
		Meta: Metadata{}.WithEntryPrice(50).WithExitReason(ReasonStopLoss),
	}

	idle := exit.Next(Idle, Metadata{})
	if idle.Kind != Idle || !idle.Meta.IsZero() {
		t.Errorf("idle after exit = %s zero=%v, want idle with empty metadata", idle.Kind, idle.Meta.IsZero())
	}

	reentry := exit.Next(Entry, Metadata{}.WithEntryPrice(70))
	if reentry.Kind != Entry {
		t.Fatalf("kind = %s, want entry", reentry.Kind)
	}
	if _, ok := reentry.Meta.ExitReason(); ok {
		t.Error("stale exit reason leaked into a new entry")
	}
	if p, _ := reentry.Meta.EntryPrice(); p != 70 {
		t.Errorf("entry price = %v, want 70", p)
	}
}

func TestKind_String(t *testing.T) {
	names := map[Kind]string{None: "none", Idle: "idle", Entry: "entry", Hold: "hold", Exit: "exit"}
	for k, want := range names {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), want)
		}
	}
}
