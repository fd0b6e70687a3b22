// Package position implements the simulated trade position lifecycle.
//
// A TradePosition moves through Idle → Entry → Hold → Exit and back to Idle
// under a fixed transition table. Positions are values: every transition
// produces a new TradePosition and nothing is mutated in place.
package position

// Kind is the lifecycle state of a position, also used as the decision a
// strategy signals for one row.
type Kind uint8

const (
	// None is the "no value" sentinel for unset position cells.
	None Kind = iota
	Idle
	Entry
	Hold
	Exit
)

// Kinds lists the four real states in table order.
var Kinds = [...]Kind{Idle, Entry, Hold, Exit}

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Entry:
		return "entry"
	case Hold:
		return "hold"
	case Exit:
		return "exit"
	}
	return "none"
}

// Open reports whether a position is held at the end of this row.
func (k Kind) Open() bool { return k == Entry || k == Hold }

// transitions[current][decision] → next. The None row mirrors Idle; a None
// decision means "no new signal".
var transitions = [5][5]Kind{
	None:  {None: Idle, Idle: Idle, Entry: Entry, Hold: Idle, Exit: Idle},
	Idle:  {None: Idle, Idle: Idle, Entry: Entry, Hold: Idle, Exit: Idle},
	Entry: {None: Hold, Idle: Hold, Entry: Hold, Hold: Hold, Exit: Exit},
	Hold:  {None: Hold, Idle: Hold, Entry: Hold, Hold: Hold, Exit: Exit},
	Exit:  {None: Idle, Idle: Idle, Entry: Entry, Hold: Idle, Exit: Idle},
}

// Transition returns the next state for the current state and the decision
// signalled this step. Out-of-range kinds are treated as None.
func Transition(current, decision Kind) Kind {
	if current > Exit {
		current = None
	}
	if decision > Exit {
		decision = None
	}
	return transitions[current][decision]
}

// TradePosition is one cell of a position column.
type TradePosition struct {
	Kind Kind
	Meta Metadata
}

// Empty is the unset cell value.
var Empty = TradePosition{}

// Valid reports whether the cell holds a real state.
func (p TradePosition) Valid() bool { return p.Kind != None }

// Next applies the transition table and merges meta into the carried
// metadata. Idle and a fresh Entry start from empty metadata so fields of a
// finished trade never leak into the next one; Hold and Exit merge forward.
func (p TradePosition) Next(decision Kind, meta Metadata) TradePosition {
	next := Transition(p.Kind, decision)
	base := p.Meta
	if next == Idle || next == Entry {
		base = Metadata{}
	}
	return TradePosition{Kind: next, Meta: Merge(base, meta)}
}
