package strategies

import "context"

// Noop never trades. Useful as a baseline: a backtest over it must end with
// exactly the initial capital and zero trades.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) OnTick(context.Context, *Context) error { return nil }

func init() {
	Register("noop", func(map[string]any) (Strategy, error) {
		return Noop{}, nil
	})
}
