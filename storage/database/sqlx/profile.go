package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/user"
	"github.com/trezcool/sapp/storage/database"
)

const profileColumns = "uid, email, name, role, status, school_id, subject, roll_number, is_system_admin, created_at, updated_at"

type profileRow struct {
	UID           string      `db:"uid"`
	Email         string      `db:"email"`
	Name          string      `db:"name"`
	Role          string      `db:"role"`
	Status        string      `db:"status"`
	SchoolID      null.String `db:"school_id"`
	Subject       null.String `db:"subject"`
	RollNumber    null.String `db:"roll_number"`
	IsSystemAdmin bool        `db:"is_system_admin"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func nullString(s string) null.String { return null.NewString(s, s != "") }

func newProfileRow(p user.Profile) profileRow {
	return profileRow{
		UID:           p.UID,
		Email:         p.Email,
		Name:          p.Name,
		Role:          string(p.Role),
		Status:        string(p.Status),
		SchoolID:      nullString(p.SchoolID),
		Subject:       nullString(p.Subject),
		RollNumber:    nullString(p.RollNumber),
		IsSystemAdmin: p.IsSystemAdmin,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func (row profileRow) profile() user.Profile {
	return user.Profile{
		UID:           row.UID,
		Email:         row.Email,
		Name:          row.Name,
		Role:          user.Role(row.Role),
		Status:        user.Status(row.Status),
		SchoolID:      row.SchoolID.String,
		Subject:       row.Subject.String,
		RollNumber:    row.RollNumber.String,
		IsSystemAdmin: row.IsSystemAdmin,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type profileRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*profileRepository)(nil)

func NewProfileRepository(db core.DBExecutor) user.Repository {
	return &profileRepository{db: db}
}

func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(database.ClassifyError(err), msg)
}

func (repo *profileRepository) GetProfile(ctx context.Context, uid string) (user.Profile, error) {
	var row profileRow
	q := "SELECT " + profileColumns + " FROM users WHERE uid = $1"
	if err := sqlx.GetContext(ctx, repo.db, &row, q, uid); err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrNotFound, "selecting profile")
	}
	return row.profile(), nil
}

func (repo *profileRepository) InsertProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	q := `INSERT INTO users (` + profileColumns + `)
		VALUES (:uid, :email, :name, :role, :status, :school_id, :subject, :roll_number, :is_system_admin, :created_at, :updated_at)`
	row := newProfileRow(p)
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		if database.IsUniqueViolation(err) {
			return user.Profile{}, user.ErrProfileExists
		}
		return user.Profile{}, errors.Wrap(database.ClassifyError(err), "inserting profile")
	}
	return row.profile(), nil
}

func (repo *profileRepository) UpdateProfile(ctx context.Context, uid string, uu user.UpdateProfile) (user.Profile, error) {
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if uu.Name != nil {
		set("name", *uu.Name)
	}
	if uu.Status != nil {
		set("status", string(*uu.Status))
	}
	if uu.SchoolID != nil {
		set("school_id", nullString(*uu.SchoolID))
	}
	if uu.Subject != nil {
		set("subject", nullString(*uu.Subject))
	}
	if uu.RollNumber != nil {
		set("roll_number", nullString(*uu.RollNumber))
	}
	set("updated_at", time.Now().UTC())
	args = append(args, uid)

	q := fmt.Sprintf(
		"UPDATE users SET %s WHERE uid = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), profileColumns,
	)
	var row profileRow
	if err := sqlx.GetContext(ctx, repo.db, &row, q, args...); err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrNotFound, "updating profile")
	}
	return row.profile(), nil
}

func (repo *profileRepository) DeleteProfile(ctx context.Context, uid string) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM users WHERE uid = $1", uid); err != nil {
		return errors.Wrap(database.ClassifyError(err), "deleting profile")
	}
	return nil
}

// ScanProfiles returns the matching profiles, oldest first.
func (repo *profileRepository) ScanProfiles(ctx context.Context, filter user.Filter) ([]user.Profile, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	q := "SELECT " + profileColumns + " FROM users"
	var args []interface{}
	if filter.Field != "" {
		// filter fields are column names, checked by Validate
		q += " WHERE " + filter.Field + " = $1"
		args = append(args, filter.Value)
	}
	q += " ORDER BY created_at, uid"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows := make([]profileRow, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(database.ClassifyError(err), "scanning profiles")
	}
	profiles := make([]user.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.profile())
	}
	return profiles, nil
}
