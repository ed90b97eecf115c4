package models

import "time"

// AIUsage is the per-user, per-day request counter backing the free-tier
// limit on the AI chat endpoint.
type AIUsage struct {
	UserID int64
	Day    time.Time
	Count  int
}
