package sim

import "fmt"

// Oracle quotes a current price for a symbol. Market orders submitted
// without a price are priced through the oracle, so execution is exactly
// as deterministic as the oracle wired in — there is no random pricing
// path in the executor itself.
type Oracle interface {
	Quote(symbol string) (float64, error)
}

// StaticOracle quotes from a fixed table. The serve command seeds it from
// the data directory's latest closes; tests hand it literal prices.
type StaticOracle struct {
	prices map[string]float64
}

func NewStaticOracle(prices map[string]float64) *StaticOracle {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &StaticOracle{prices: cp}
}

// SetQuote adds or replaces a symbol's quote.
func (o *StaticOracle) SetQuote(symbol string, price float64) {
	o.prices[symbol] = price
}

// Quote implements Oracle.
func (o *StaticOracle) Quote(symbol string) (float64, error) {
	p, ok := o.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}
