package domain

import (
	"fmt"
	"time"
)

const (
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// Limits are spending thresholds in points. Zero means unlimited.
type Limits struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
	PerTx   int64 `json:"per_tx"`
}

// NeedsHistory reports whether a rolling-window sum must be read to check
// these limits.
func (l Limits) NeedsHistory() bool {
	return l.Daily > 0 || l.Monthly > 0
}

// Check fails with ErrLimitExceeded when amount, added to what was already
// spent in each rolling window, crosses a configured threshold.
func (l Limits) Check(amount, spentDay, spentMonth int64) error {
	if l.PerTx > 0 && amount > l.PerTx {
		return fmt.Errorf("%w: %d exceeds per-transaction limit %d", ErrLimitExceeded, amount, l.PerTx)
	}
	if l.Daily > 0 && spentDay+amount > l.Daily {
		return fmt.Errorf("%w: daily limit %d, already spent %d", ErrLimitExceeded, l.Daily, spentDay)
	}
	if l.Monthly > 0 && spentMonth+amount > l.Monthly {
		return fmt.Errorf("%w: monthly limit %d, already spent %d", ErrLimitExceeded, l.Monthly, spentMonth)
	}
	return nil
}
