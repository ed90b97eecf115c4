package aiusage

import (
	"context"
	"time"
)

type Repository interface {
	// Increment admits one request for (userID, day) and returns the counter
	// value after the increment. When the counter already reached limit it
	// returns common.ErrDailyLimitReached and leaves the row unchanged.
	// Admission and increment are one atomic statement.
	Increment(ctx context.Context, userID int64, day time.Time, limit int) (int, error)

	// CountFor returns the counter for (userID, day); 0 when absent.
	CountFor(ctx context.Context, userID int64, day time.Time) (int, error)
}
