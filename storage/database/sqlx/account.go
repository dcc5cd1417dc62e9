package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
)

const accountColumns = `"id", "name", "username", "email", "institution", "teacher_name", "role",
	"is_active", "password_hash", "created_at", "updated_at", "last_login"`

var orderableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"last_login": true,
	"name":       true,
	"username":   true,
	"email":      true,
}

type (
	accountRow struct {
		ID           string      `db:"id"`
		Name         string      `db:"name"`
		Username     null.String `db:"username"`
		Email        string      `db:"email"`
		Institution  string      `db:"institution"`
		TeacherName  string      `db:"teacher_name"`
		Role         string      `db:"role"`
		IsActive     bool        `db:"is_active"`
		PasswordHash []byte      `db:"password_hash"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
		LastLogin    null.Time   `db:"last_login"`
	}

	accountRepository struct {
		db *sqlx.DB
	}
)

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

// NewAccountRepository returns a postgres account.Repository.
// Methods run on the executor passed to them (e.g. a *sqlx.Tx), or on db.
func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) getExec(exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 {
		if ext, ok := exec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return repo.db
}

func toRow(acc account.Account) accountRow {
	return accountRow{
		ID:           acc.ID,
		Name:         acc.Name,
		Username:     null.NewString(acc.Username, acc.Username != ""),
		Email:        acc.Email,
		Institution:  acc.Institution,
		TeacherName:  acc.TeacherName,
		Role:         acc.Role,
		IsActive:     acc.IsActive,
		PasswordHash: acc.PasswordHash,
		CreatedAt:    acc.CreatedAt.UTC(),
		UpdatedAt:    acc.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(acc.LastLogin.UTC(), !acc.LastLogin.IsZero()),
	}
}

func (row accountRow) account() account.Account {
	return account.Account{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email,
		Institution:  row.Institution,
		TeacherName:  row.TeacherName,
		Role:         row.Role,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to account.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	q := `SELECT (? <> '' AND LOWER(COALESCE("username", '')) = LOWER(?)) FROM "account"
		WHERE ((? <> '' AND LOWER("username") = LOWER(?)) OR LOWER("email") = LOWER(?))`
	args := []interface{}{username, username, username, username, email}
	if len(excludedIDs) > 0 {
		q += ` AND "id" NOT IN (?)`
		args = append(args, excludedIDs)
	}
	q, args, err := sqlx.In(q+" LIMIT 1", args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var usernameTaken bool
	err = sqlx.GetContext(ctx, repo.db, &usernameTaken, repo.db.Rebind(q), args...)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking account uniqueness")
	case usernameTaken:
		return account.ErrUsernameExists
	default:
		return account.ErrEmailExists
	}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	acc.ID = uuid.New().String()
	row := toRow(acc)
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `INSERT INTO "account" (`+accountColumns+`) VALUES (
		:id, :name, :username, :email, :institution, :teacher_name, :role,
		:is_active, :password_hash, :created_at, :updated_at, :last_login)`, row)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return row.account(), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM "account"`
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			if orderableColumns[ord.Field] {
				orderList = append(orderList, ord.String())
			}
		}
		if len(orderList) > 0 {
			q += " ORDER BY " + strings.Join(orderList, ", ")
		}
	}

	var rows []accountRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	accounts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.account())
	}
	return accounts, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter, exec ...core.DBExecutor) (account.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM "account" WHERE `
	var arg string
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return account.Account{}, account.ErrNotFound
		}
		q += `"id" = $1`
		arg = filter.ID
	case filter.Username != "":
		q += `LOWER("username") = LOWER($1)`
		arg = filter.Username
	case filter.Email != "":
		q += `LOWER("email") = LOWER($1)`
		arg = filter.Email
	case filter.UsernameOrEmail != "":
		q += `(LOWER("username") = LOWER($1) OR LOWER("email") = LOWER($1))`
		arg = filter.UsernameOrEmail
	default:
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q+" LIMIT 1", arg); err != nil {
		return account.Account{}, trapNoRowsErr(err, "finding account")
	}
	return row.account(), nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	row := toRow(acc)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `UPDATE "account" SET
		"name" = :name, "username" = :username, "email" = :email, "institution" = :institution,
		"teacher_name" = :teacher_name, "role" = :role, "is_active" = :is_active,
		"password_hash" = :password_hash, "updated_at" = :updated_at, "last_login" = :last_login
		WHERE "id" = :id`, row)
	if err != nil {
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return row.account(), nil
}

func (repo *accountRepository) DeleteAccountsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(`DELETE FROM "account" WHERE "id" IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting accounts")
	}
	cnt, err := res.RowsAffected()
	return int(cnt), errors.Wrap(err, "counting deleted accounts")
}
