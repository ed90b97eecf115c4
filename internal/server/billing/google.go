package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Subscription states from the androidpublisher subscriptionsv2 resource.
// States not listed here (paused, on hold, expired, revoked) never grant an
// entitlement.
const (
	subscriptionStateActive      = "SUBSCRIPTION_STATE_ACTIVE"
	subscriptionStateGracePeriod = "SUBSCRIPTION_STATE_IN_GRACE_PERIOD"
	subscriptionStateCanceled    = "SUBSCRIPTION_STATE_CANCELED"
)

// subscriptionGetter is the single androidpublisher call the client makes,
// extracted so tests can substitute vendor responses.
type subscriptionGetter func(ctx context.Context, packageName, token string) (*androidpublisher.SubscriptionPurchaseV2, error)

// GoogleClient verifies Google Play purchase tokens against the
// subscriptionsv2 endpoint, authenticated with a service-account credential.
type GoogleClient struct {
	packageName string
	productID   string
	timeout     time.Duration
	getSub      subscriptionGetter
	now         func() time.Time
}

// NewGoogleClient builds the androidpublisher service once from the
// service-account JSON. Token refresh on the underlying OAuth source is
// handled by the library.
func NewGoogleClient(ctx context.Context, credentialsJSON []byte, packageName, productID string, timeout time.Duration) (*GoogleClient, error) {
	svc, err := androidpublisher.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("creating androidpublisher service: %w", err)
	}
	c := &GoogleClient{
		packageName: packageName,
		productID:   productID,
		timeout:     timeout,
		now:         time.Now,
	}
	c.getSub = func(ctx context.Context, pkg, token string) (*androidpublisher.SubscriptionPurchaseV2, error) {
		return svc.Purchases.Subscriptionsv2.Get(pkg, token).Context(ctx).Do()
	}
	return c, nil
}

// Verify looks the purchase token up at Google and maps the result. A 4xx
// from the vendor denies the purchase; 5xx and transport failures are
// upstream errors so that a Google outage never revokes anyone.
func (c *GoogleClient) Verify(ctx context.Context, proof Proof) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sub, err := c.getSub(ctx, c.packageName, proof.Token)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code < 500 {
			return denied(fmt.Errorf("%w: status %d", ErrVendorRejected, gerr.Code))
		}
		return upstreamError(fmt.Errorf("%w: %v", ErrVendorUnreachable, err))
	}

	receipt, err := c.normalize(sub, proof)
	if err != nil {
		return upstreamError(err)
	}
	return verified(receipt)
}

// normalize maps the vendor document to a Receipt. Among multiple line items
// the one with the latest expiry wins and supplies the product id.
func (c *GoogleClient) normalize(sub *androidpublisher.SubscriptionPurchaseV2, proof Proof) (*Receipt, error) {
	if sub == nil || len(sub.LineItems) == 0 {
		return nil, fmt.Errorf("%w: no line items", ErrMalformedVendorResponse)
	}

	var (
		latest    time.Time
		productID string
	)
	for _, item := range sub.LineItems {
		if item == nil || item.ExpiryTime == "" {
			continue
		}
		expiry, err := time.Parse(time.RFC3339, item.ExpiryTime)
		if err != nil {
			return nil, fmt.Errorf("%w: bad expiry time %q", ErrMalformedVendorResponse, item.ExpiryTime)
		}
		if expiry.After(latest) {
			latest = expiry
			productID = item.ProductId
		}
	}
	if latest.IsZero() {
		return nil, fmt.Errorf("%w: no expiry in line items", ErrMalformedVendorResponse)
	}
	if productID == "" {
		productID = c.productID
	}

	r := &Receipt{
		Token:     proof.Token,
		ProductID: productID,
		ExpiresAt: latest,
		Entitled:  entitledState(sub.SubscriptionState, latest, c.now()),
	}
	if sub.StartTime != "" {
		if start, err := time.Parse(time.RFC3339, sub.StartTime); err == nil {
			r.PurchasedAt = start
		}
	}
	return r, nil
}

// entitledState maps the vendor state to a boolean entitlement. Active and
// grace period count. Canceled keeps the entitlement while the already paid
// window lasts, since cancellation only stops renewal.
func entitledState(state string, expiry time.Time, now time.Time) bool {
	switch state {
	case subscriptionStateActive, subscriptionStateGracePeriod:
		return true
	case subscriptionStateCanceled:
		return expiry.After(now)
	default:
		return false
	}
}
