package ledger

// Snapshot is the persistable state of a ledger: cash plus positions.
// The trade log is journaled separately, keyed by order or backtest id,
// so a snapshot stays small no matter how long a portfolio lives.
type Snapshot struct {
	Cash      float64    `json:"cash"`
	Positions []Position `json:"positions"`
}

// Snapshot captures the current cash and positions.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{Cash: l.Cash(), Positions: l.Positions()}
}

// FromSnapshot rebuilds a ledger from persisted state.
func FromSnapshot(s Snapshot) *Ledger {
	l := New(s.Cash)
	for _, p := range s.Positions {
		cp := p
		cp.setPrice(p.CurrentPrice)
		l.positions[p.Symbol] = &cp
	}
	return l
}
