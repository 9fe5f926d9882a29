package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var microsecondsPerHour = decimal.NewFromInt(int64(time.Hour / time.Microsecond))

// BillableAmount prices the span [start, end] at hourlyRate, rounded to two places with halves
// going up.
func BillableAmount(start, end time.Time, hourlyRate decimal.Decimal) (decimal.Decimal, error) {
	if end.Before(start) {
		return decimal.Zero, fmt.Errorf("%w: end %s before start %s", ErrInvalidInput,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	elapsed := decimal.NewFromInt(end.Sub(start).Microseconds())
	return elapsed.Mul(hourlyRate).Div(microsecondsPerHour).Round(2), nil
}

// FormatDuration renders d as HH:MM:SS. Hours do not wrap at 24.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
