package position

import "time"

// ExitReason classifies why a position was closed.
type ExitReason string

const (
	ReasonStopLoss   ExitReason = "stop-loss"
	ReasonTakeProfit ExitReason = "take-profit"
	ReasonStrategy   ExitReason = "strategy"
	ReasonEndOfData  ExitReason = "end-of-data"
)

type field uint8

const (
	fEntryPrice field = 1 << iota
	fEntryTime
	fExitReason
	fShort
)

// Metadata is the immutable record carried by a TradePosition. Each field is
// either set or unset; Merge overrides only the fields set on the newer value.
// Build values with the With* methods, which return modified copies.
type Metadata struct {
	entryPrice float64
	entryTime  time.Time
	exitReason ExitReason
	short      bool
	set        field
}

// EntryPrice returns the recorded entry price.
func (m Metadata) EntryPrice() (float64, bool) { return m.entryPrice, m.set&fEntryPrice != 0 }

// EntryTime returns the recorded entry time.
func (m Metadata) EntryTime() (time.Time, bool) { return m.entryTime, m.set&fEntryTime != 0 }

// ExitReason returns the recorded exit reason.
func (m Metadata) ExitReason() (ExitReason, bool) { return m.exitReason, m.set&fExitReason != 0 }

// Short reports whether the position is a short. Unset reads as long.
func (m Metadata) Short() bool { return m.short }

// IsZero reports whether no field is set.
func (m Metadata) IsZero() bool { return m.set == 0 }

func (m Metadata) WithEntryPrice(p float64) Metadata {
	m.entryPrice = p
	m.set |= fEntryPrice
	return m
}

func (m Metadata) WithEntryTime(t time.Time) Metadata {
	m.entryTime = t
	m.set |= fEntryTime
	return m
}

func (m Metadata) WithExitReason(r ExitReason) Metadata {
	m.exitReason = r
	m.set |= fExitReason
	return m
}

func (m Metadata) WithShort(short bool) Metadata {
	m.short = short
	m.set |= fShort
	return m
}

// Merge returns old with every field set on upd overriding it.
func Merge(old, upd Metadata) Metadata {
	out := old
	if upd.set&fEntryPrice != 0 {
		out.entryPrice = upd.entryPrice
	}
	if upd.set&fEntryTime != 0 {
		out.entryTime = upd.entryTime
	}
	if upd.set&fExitReason != 0 {
		out.exitReason = upd.exitReason
	}
	if upd.set&fShort != 0 {
		out.short = upd.short
	}
	out.set |= upd.set
	return out
}

// Equal reports field-wise equality including which fields are set.
func (m Metadata) Equal(o Metadata) bool {
	return m.set == o.set &&
		m.entryPrice == o.entryPrice &&
		m.entryTime.Equal(o.entryTime) &&
		m.exitReason == o.exitReason &&
		m.short == o.short
}
