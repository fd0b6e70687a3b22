package columnar

import (
	"math"
	"testing"

	"tradelab/internal/position"
)

func TestStore_AppendAndNegativeIndex(t *testing.T) {
	s := New[float64](0)
	for i := 0; i < 5; i++ {
		if idx := s.Append(float64(i * 10)); idx != i {
			t.Fatalf("Append returned %d, want %d", idx, i)
		}
	}

	if s.Len() != 5 {
		t.Fatalf("Len = %d, want 5", s.Len())
	}
	if v, ok := s.Value(-1); !ok || v != 40 {
		t.Errorf("Value(-1) = %v/%v, want 40", v, ok)
	}
	if v, ok := s.Value(-5); !ok || v != 0 {
		t.Errorf("Value(-5) = %v/%v, want 0", v, ok)
	}
	if _, ok := s.Value(5); ok {
		t.Error("Value(5) should be out of range")
	}
	if _, ok := s.Value(-6); ok {
		t.Error("Value(-6) should be out of range")
	}
}

func TestStore_GrowthIsPowerOfTwoAndPreservesData(t *testing.T) {
	s := New[float64](3)
	if s.Cap() != 8 {
		t.Fatalf("initial Cap = %d, want 8", s.Cap())
	}
	s.EnsureColumn("x")
	s.EnsurePositionColumn("p")

	for i := 0; i < 9; i++ {
		s.Append(float64(i))
		s.SetColumn(i, "x", float64(i)*2)
	}
	s.SetPosition(0, "p", position.TradePosition{Kind: position.Entry})

	if s.Cap() != 16 {
		t.Fatalf("Cap after 9 appends = %d, want 16", s.Cap())
	}
	for i := 0; i < 9; i++ {
		if v, _ := s.Value(i); v != float64(i) {
			t.Errorf("row %d = %v after growth", i, v)
		}
		if got := s.Column(i, "x"); got != float64(i)*2 {
			t.Errorf("x[%d] = %v after growth", i, got)
		}
	}
	if s.Position(0, "p").Kind != position.Entry {
		t.Error("position cell lost after growth")
	}

	s.Append(99)
	if !math.IsNaN(s.Column(-1, "x")) {
		t.Error("new indicator cell should read NaN")
	}
	if s.Position(-1, "p").Kind != position.None {
		t.Error("new position cell should read None")
	}
}

func TestStore_Sentinels(t *testing.T) {
	s := New[float64](0)
	s.Append(1)

	if !math.IsNaN(s.Column(0, "missing")) {
		t.Error("unknown column should read NaN")
	}
	if s.SetColumn(0, "missing", 1) {
		t.Error("SetColumn on unknown column should report false")
	}
	s.EnsureColumn("x")
	if s.SetColumn(3, "x", 1) {
		t.Error("SetColumn out of range should report false")
	}
	if !math.IsNaN(s.Column(-2, "x")) {
		t.Error("out-of-range cell should read NaN")
	}
	if s.Position(0, "missing").Valid() {
		t.Error("unknown position column should read Empty")
	}
	if s.Position(7, "missing") != position.Empty {
		t.Error("out-of-range position should read Empty")
	}
}

func TestStore_EnsureColumnIsIdempotent(t *testing.T) {
	s := New[float64](0)
	s.Append(1)
	if !s.EnsureColumn("x") {
		t.Fatal("first EnsureColumn should create")
	}
	s.SetColumn(0, "x", 5)
	if s.EnsureColumn("x") {
		t.Error("second EnsureColumn should be a no-op")
	}
	if s.Column(0, "x") != 5 {
		t.Error("EnsureColumn overwrote existing data")
	}
	if got := s.Columns(); len(got) != 1 || got[0] != "x" {
		t.Errorf("Columns = %v", got)
	}
}

func TestView_TruncatesHistory(t *testing.T) {
	s := New[float64](0)
	s.EnsureColumn("x")
	for i := 0; i < 6; i++ {
		s.Append(float64(i))
		s.SetColumn(i, "x", float64(i)+0.5)
	}

	v := s.Upto(2)
	if v.Len() != 3 {
		t.Fatalf("Len = %d, want 3", v.Len())
	}
	if last, _ := v.Last(); last != 2 {
		t.Errorf("Last = %v, want 2", last)
	}
	if _, ok := v.Value(3); ok {
		t.Error("view must not expose rows past its end")
	}
	if got := v.Column(-1, "x"); got != 2.5 {
		t.Errorf("Column(-1) = %v, want 2.5", got)
	}
	if !math.IsNaN(v.Column(4, "x")) {
		t.Error("view column past end should be NaN")
	}

	if s.Upto(10).Len() != 0 {
		t.Error("out-of-range Upto should be empty")
	}
	if s.Upto(-1).Len() != 6 {
		t.Error("Upto(-1) should cover every row")
	}
}

func TestQuote_AccessAndSnapshot(t *testing.T) {
	s := New[float64](0)
	s.EnsureColumn("sma")
	s.EnsurePositionColumn("strat")
	for i := 0; i < 3; i++ {
		s.Append(float64(100 + i))
		s.SetColumn(i, "sma", float64(i))
	}
	s.SetPosition(2, "strat", position.TradePosition{Kind: position.Hold})

	q := s.Quote(-1)
	if !q.Valid() || q.Index() != 2 || q.Raw() != 102 {
		t.Fatalf("quote = %+v", q.Snapshot())
	}
	if q.Indicator("sma") != 2 {
		t.Errorf("Indicator = %v", q.Indicator("sma"))
	}
	if q.Position("strat").Kind != position.Hold {
		t.Error("Position kind mismatch")
	}
	if q.Prev(1).Raw() != 101 {
		t.Error("Prev(1) should be row 1")
	}
	if q.Prev(3).Valid() {
		t.Error("Prev past the first row should be invalid")
	}

	snap := q.Snapshot()
	s.SetColumn(2, "sma", 42)
	if snap.Indicators["sma"] != 2 {
		t.Error("snapshot must not follow later writes")
	}
	if snap.Positions["strat"].Kind != position.Hold {
		t.Error("snapshot missing position")
	}

	bad := s.Quote(9)
	if bad.Valid() || bad.Index() != -1 || !math.IsNaN(bad.Indicator("sma")) {
		t.Error("out-of-range quote should be invalid")
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 8: 8, 9: 16, 1000: 1024}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
