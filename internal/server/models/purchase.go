package models

import "time"

// Billing vendors recorded in the purchase ledger.
const (
	VendorGoogle = "google"
	VendorApple  = "apple"
)

// Purchase is one ledger row per (vendor, purchase token): the verified
// history of a receipt. Rows are updated on re-verification, never deleted,
// so the ledger doubles as an audit trail.
type Purchase struct {
	ID            string
	UserID        int64
	Vendor        string
	PurchaseToken string
	ProductID     string
	PurchasedAt   *time.Time
	ExpiresAt     *time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
