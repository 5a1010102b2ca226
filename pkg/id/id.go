// Package id generates ULID identifiers for orders, portfolios and
// backtest jobs.
package id

import (
	cryptoRand "crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader = ulid.Monotonic(cryptoRand.Reader, 0)
)

// New returns a ULID string. ULIDs sort lexicographically by creation time,
// which keeps order and job listings in submission order without a separate
// sequence column.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Entropy exhaustion within a single millisecond; fall back to a
		// fresh non-monotonic ULID rather than failing mid-trade.
		return ulid.Make().String()
	}
	return u.String()
}
