// journal/csv.go
package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// ExportBacktestCSV writes a finished backtest's trade log and equity
// curve to two CSV files, for analysis outside the database.
func (s *Store) ExportBacktestCSV(ctx context.Context, jobID, tradesPath, equityPath string) error {
	job, err := s.GetBacktest(ctx, jobID)
	if err != nil {
		return err
	}

	tf, err := os.Create(tradesPath)
	if err != nil {
		return err
	}
	defer tf.Close()

	tw := csv.NewWriter(tf)
	if err := tw.Write([]string{"side", "symbol", "quantity", "price", "time", "realized_pl"}); err != nil {
		return err
	}
	for _, tr := range job.Trades {
		if err := tw.Write([]string{
			string(tr.Side),
			tr.Symbol,
			f(tr.Quantity),
			f(tr.Price),
			tr.Time.Format(time.RFC3339),
			f(tr.RealizedPL),
		}); err != nil {
			return err
		}
	}
	tw.Flush()
	if err := tw.Error(); err != nil {
		return err
	}

	ef, err := os.Create(equityPath)
	if err != nil {
		return err
	}
	defer ef.Close()

	ew := csv.NewWriter(ef)
	if err := ew.Write([]string{"date", "total_value"}); err != nil {
		return err
	}
	for _, p := range job.EquityCurve {
		if err := ew.Write([]string{
			p.Date.Format("2006-01-02"),
			f(p.TotalValue),
		}); err != nil {
			return err
		}
	}
	ew.Flush()
	return ew.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
