package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/entitlements"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/logintokens"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/purchases"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/settings"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/softdelete"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/users"
)

// RepositoryManager binds repositories to a handle, either the pool or an
// open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	LoginTokens(db dbx.DBTX) logintokens.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Purchases(db dbx.DBTX) purchases.Repository
	Entitlements(db dbx.DBTX) entitlements.Repository
	Settings(db dbx.DBTX) settings.Repository
	SoftDelete(db dbx.DBTX) softdelete.Repository
}
