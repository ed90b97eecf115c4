package repomanager

import (
	"context"
	"database/sql"

	"github.com/sarbazinfo/sarbaz-server/internal/dbx"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/aiusage"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/purchases"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/sessions"
	"github.com/sarbazinfo/sarbaz-server/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can run several repositories inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Purchases(db dbx.DBTX) purchases.Repository
	AIUsage(db dbx.DBTX) aiusage.Repository
}
