package purchases

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sarbazinfo/sarbaz-server/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestUpsert_Insert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+purchases\b.*ON\s+CONFLICT\s*\(vendor,\s*purchase_token\)\s+DO\s+UPDATE\b.*RETURNING\s+id,\s*user_id,\s*created_at,\s*updated_at\s*$`

	expires := time.Now().Add(30 * 24 * time.Hour)
	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("p-1", int64(7), models.VendorGoogle, "tok123", "sarbaz_premium_monthly", nil, expires, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).
			AddRow("p-1", int64(7), now, now))

	got, err := repo.Upsert(context.Background(), &models.Purchase{
		ID:            "p-1",
		UserID:        7,
		Vendor:        models.VendorGoogle,
		PurchaseToken: "tok123",
		ProductID:     "sarbaz_premium_monthly",
		ExpiresAt:     &expires,
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "p-1" || got.UserID != 7 {
		t.Fatalf("unexpected purchase: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_ConflictKeepsOriginalOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+purchases\b.*ON\s+CONFLICT\b.*RETURNING\s+id,\s*user_id,\s*created_at,\s*updated_at\s*$`

	expires := time.Now().Add(30 * 24 * time.Hour)
	created := time.Now().Add(-90 * 24 * time.Hour)
	// User 9 replays a token user 7 verified first: the returned row still
	// belongs to user 7.
	mock.ExpectQuery(q).
		WithArgs("p-new", int64(9), models.VendorGoogle, "tok123", "sarbaz_premium_monthly", nil, expires, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "updated_at"}).
			AddRow("p-old", int64(7), created, time.Now()))

	got, err := repo.Upsert(context.Background(), &models.Purchase{
		ID:            "p-new",
		UserID:        9,
		Vendor:        models.VendorGoogle,
		PurchaseToken: "tok123",
		ProductID:     "sarbaz_premium_monthly",
		ExpiresAt:     &expires,
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "p-old" || got.UserID != 7 {
		t.Fatalf("conflict must keep original row, got %+v", got)
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+purchases\b`

	mock.ExpectQuery(q).
		WithArgs("p-1", int64(7), models.VendorApple, "tok123", "", nil, nil, false).
		WillReturnError(errors.New("db down"))

	_, err := repo.Upsert(context.Background(), &models.Purchase{
		ID: "p-1", UserID: 7, Vendor: models.VendorApple, PurchaseToken: "tok123",
	})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func purchaseRows(rows ...[]driver.Value) *sqlmock.Rows {
	r := sqlmock.NewRows([]string{
		"id", "user_id", "vendor", "purchase_token", "product_id",
		"purchased_at", "expires_at", "is_active", "created_at", "updated_at",
	})
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}

func TestListActive_ScansRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*user_id,.*\s+FROM\s+purchases\s+WHERE\s+vendor\s*=\s*\$1\s+AND\s+is_active\s+ORDER\s+BY\s+updated_at\s*$`

	now := time.Now()
	expires := now.Add(24 * time.Hour)
	mock.ExpectQuery(q).
		WithArgs(models.VendorGoogle).
		WillReturnRows(purchaseRows(
			[]driver.Value{"p-1", int64(7), models.VendorGoogle, "tok1", "sarbaz_premium_monthly", now.Add(-time.Hour), expires, true, now, now},
			[]driver.Value{"p-2", int64(8), models.VendorGoogle, "tok2", "sarbaz_premium_monthly", nil, nil, true, now, now},
		))

	got, err := repo.ListActive(context.Background(), models.VendorGoogle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].ExpiresAt == nil || !got[0].ExpiresAt.Equal(expires) {
		t.Fatalf("expires_at not scanned: %+v", got[0].ExpiresAt)
	}
	if got[1].PurchasedAt != nil || got[1].ExpiresAt != nil {
		t.Fatalf("null timestamps must scan as nil: %+v", got[1])
	}
}

func TestListByUser_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*user_id,.*\s+FROM\s+purchases\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s*$`

	mock.ExpectQuery(q).
		WithArgs(int64(7)).
		WillReturnRows(purchaseRows())

	got, err := repo.ListByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want no rows, got %d", len(got))
	}
}

func TestLatestActiveExpiry_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+expires_at\s+FROM\s+purchases\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_active\s+AND\s+expires_at\s*>\s*\$2\s+ORDER\s+BY\s+expires_at\s+DESC\s+LIMIT\s+1\s*$`

	now := time.Now()
	expires := now.Add(14 * 24 * time.Hour)
	mock.ExpectQuery(q).
		WithArgs(int64(7), now).
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(expires))

	got, err := repo.LatestActiveExpiry(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || !got.Equal(expires) {
		t.Fatalf("want %v, got %v", expires, got)
	}
}

func TestLatestActiveExpiry_NoneIsNotAnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+expires_at\s+FROM\s+purchases\b`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs(int64(7), now).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.LatestActiveExpiry(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil expiry, got %v", got)
	}
}

func TestDeactivate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+purchases\s+SET\s+is_active\s*=\s*false,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Deactivate(context.Background(), "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
