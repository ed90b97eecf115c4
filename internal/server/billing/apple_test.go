package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	claims map[string]any
	err    error
}

func (d *fakeDecoder) Decode(token string) (map[string]any, error) {
	return d.claims, d.err
}

func newTestAppleClient(dec PayloadDecoder) *AppleClient {
	c := NewAppleClient(dec, "kz.sarbazinfo5000.app", "sarbaz_premium_monthly")
	c.now = func() time.Time { return testNow }
	return c
}

func validAppleClaims(expiry time.Time) map[string]any {
	return map[string]any{
		"bundleId":              "kz.sarbazinfo5000.app",
		"productId":             "sarbaz_premium_monthly",
		"originalTransactionId": "orig-100",
		"transactionId":         "txn-105",
		"expiresDate":           float64(expiry.UnixMilli()),
		"purchaseDate":          float64(testNow.Add(-24 * time.Hour).UnixMilli()),
	}
}

func TestAppleVerify_Valid(t *testing.T) {
	expiry := testNow.Add(15 * 24 * time.Hour)
	client := newTestAppleClient(&fakeDecoder{claims: validAppleClaims(expiry)})

	out := client.Verify(context.Background(), Proof{Payload: "signed", ProductID: "sarbaz_premium_monthly"})

	require.Equal(t, StatusVerified, out.Status)
	require.NotNil(t, out.Receipt)
	assert.True(t, out.Receipt.Entitled)
	assert.Equal(t, "orig-100", out.Receipt.Token)
	assert.Equal(t, "sarbaz_premium_monthly", out.Receipt.ProductID)
	assert.True(t, out.Receipt.ExpiresAt.Equal(time.UnixMilli(expiry.UnixMilli())))
	assert.False(t, out.Receipt.PurchasedAt.IsZero())
}

func TestAppleVerify_ExpiredStillVerified(t *testing.T) {
	// An authentic but lapsed receipt verifies with Entitled=false, so the
	// ledger records it and the entitlement is derived from the dates.
	client := newTestAppleClient(&fakeDecoder{claims: validAppleClaims(testNow.Add(-time.Hour))})

	out := client.Verify(context.Background(), Proof{Payload: "signed"})

	require.Equal(t, StatusVerified, out.Status)
	assert.False(t, out.Receipt.Entitled)
}

func TestAppleVerify_DecodeFailure(t *testing.T) {
	client := newTestAppleClient(&fakeDecoder{err: errors.New("signature invalid")})

	out := client.Verify(context.Background(), Proof{Payload: "garbage"})

	require.Equal(t, StatusDenied, out.Status)
	assert.ErrorIs(t, out.Reason, ErrDecodeFailed)
	assert.Nil(t, out.Receipt)
}

func TestAppleVerify_BundleMismatch(t *testing.T) {
	claims := validAppleClaims(testNow.Add(time.Hour))
	claims["bundleId"] = "com.example.other"
	client := newTestAppleClient(&fakeDecoder{claims: claims})

	out := client.Verify(context.Background(), Proof{Payload: "signed"})

	require.Equal(t, StatusDenied, out.Status)
	assert.ErrorIs(t, out.Reason, ErrAppIdentifierMismatch)
}

func TestAppleVerify_ProductMismatch(t *testing.T) {
	claims := validAppleClaims(testNow.Add(time.Hour))
	claims["productId"] = "sarbaz_premium_yearly"
	client := newTestAppleClient(&fakeDecoder{claims: claims})

	out := client.Verify(context.Background(), Proof{Payload: "signed"})

	require.Equal(t, StatusDenied, out.Status)
	assert.ErrorIs(t, out.Reason, ErrProductMismatch)
}

func TestAppleVerify_RequestedProductMismatch(t *testing.T) {
	client := newTestAppleClient(&fakeDecoder{claims: validAppleClaims(testNow.Add(time.Hour))})

	out := client.Verify(context.Background(), Proof{Payload: "signed", ProductID: "sarbaz_premium_yearly"})

	require.Equal(t, StatusDenied, out.Status)
	assert.ErrorIs(t, out.Reason, ErrProductMismatch)
}

func TestAppleVerify_MissingExpiry(t *testing.T) {
	claims := validAppleClaims(testNow.Add(time.Hour))
	delete(claims, "expiresDate")
	client := newTestAppleClient(&fakeDecoder{claims: claims})

	out := client.Verify(context.Background(), Proof{Payload: "signed"})

	require.Equal(t, StatusDenied, out.Status)
	assert.ErrorIs(t, out.Reason, ErrNoExpiry)
}

func TestAppleVerify_ExpiryWrongType(t *testing.T) {
	claims := validAppleClaims(testNow.Add(time.Hour))
	claims["expiresDate"] = "1798761600000"
	client := newTestAppleClient(&fakeDecoder{claims: claims})

	out := client.Verify(context.Background(), Proof{Payload: "signed"})

	require.Equal(t, StatusDenied, out.Status)
	assert.ErrorIs(t, out.Reason, ErrNoExpiry)
}

func TestAppleVerify_LedgerTokenFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		strip []string
		want  string
	}{
		{"original transaction id preferred", nil, "orig-100"},
		{"falls back to transaction id", []string{"originalTransactionId"}, "txn-105"},
		{"falls back to proof token", []string{"originalTransactionId", "transactionId"}, "hint-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validAppleClaims(testNow.Add(time.Hour))
			for _, k := range tt.strip {
				delete(claims, k)
			}
			client := newTestAppleClient(&fakeDecoder{claims: claims})

			out := client.Verify(context.Background(), Proof{Payload: "signed", Token: "hint-1"})

			require.Equal(t, StatusVerified, out.Status)
			assert.Equal(t, tt.want, out.Receipt.Token)
		})
	}
}
