package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/storage/database"
)

const accountColumns = "uid, email, password_hash, tokens_valid_after, created_at, updated_at"

type accountRow struct {
	UID              string    `db:"uid"`
	Email            string    `db:"email"`
	PasswordHash     []byte    `db:"password_hash"`
	TokensValidAfter time.Time `db:"tokens_valid_after"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func newAccountRow(a identity.Account) accountRow {
	return accountRow{
		UID:              a.UID,
		Email:            a.Email,
		PasswordHash:     a.PasswordHash,
		TokensValidAfter: a.TokensValidAfter.UTC(),
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}
}

func (row accountRow) account() identity.Account {
	return identity.Account{
		UID:              row.UID,
		Email:            row.Email,
		PasswordHash:     row.PasswordHash,
		TokensValidAfter: row.TokensValidAfter.UTC(),
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

type accountRepository struct {
	db core.DBExecutor
}

var _ identity.AccountRepository = (*accountRepository)(nil)

func NewAccountRepository(db core.DBExecutor) identity.AccountRepository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) InsertAccount(ctx context.Context, a identity.Account) error {
	q := `INSERT INTO accounts (` + accountColumns + `)
		VALUES (:uid, :email, :password_hash, :tokens_valid_after, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, newAccountRow(a)); err != nil {
		if database.IsUniqueViolation(err) {
			return identity.ErrAccountExists
		}
		return errors.Wrap(database.ClassifyError(err), "inserting account")
	}
	return nil
}

func (repo *accountRepository) get(ctx context.Context, where string, arg interface{}) (identity.Account, error) {
	var row accountRow
	q := "SELECT " + accountColumns + " FROM accounts WHERE " + where + " = $1"
	if err := sqlx.GetContext(ctx, repo.db, &row, q, arg); err != nil {
		return identity.Account{}, trapNoRowsErr(err, identity.ErrAccountNotFound, "selecting account")
	}
	return row.account(), nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, uid string) (identity.Account, error) {
	return repo.get(ctx, "uid", uid)
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	return repo.get(ctx, "email", email)
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, a identity.Account) error {
	q := `UPDATE accounts SET email = :email, password_hash = :password_hash,
		tokens_valid_after = :tokens_valid_after, updated_at = :updated_at WHERE uid = :uid`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, newAccountRow(a))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return identity.ErrAccountExists
		}
		return errors.Wrap(database.ClassifyError(err), "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}

func (repo *accountRepository) DeleteAccount(ctx context.Context, uid string) error {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM accounts WHERE uid = $1", uid)
	if err != nil {
		return errors.Wrap(database.ClassifyError(err), "deleting account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}
