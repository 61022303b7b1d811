package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/user"
	"github.com/trezcool/sapp/storage/database"
)

const schoolColumns = "id, name, address, contact, created_at"

type schoolRow struct {
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Address   null.String `db:"address"`
	Contact   null.String `db:"contact"`
	CreatedAt time.Time   `db:"created_at"`
}

func (row schoolRow) school() user.School {
	return user.School{
		ID:        row.ID,
		Name:      row.Name,
		Address:   row.Address.String,
		Contact:   row.Contact.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type schoolRepository struct {
	db core.DBExecutor
}

var _ user.SchoolRepository = (*schoolRepository)(nil)

func NewSchoolRepository(db core.DBExecutor) user.SchoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) InsertSchool(ctx context.Context, s user.School) (user.School, error) {
	q := `INSERT INTO schools (` + schoolColumns + `) VALUES (:id, :name, :address, :contact, :created_at)`
	row := schoolRow{
		ID:        s.ID,
		Name:      s.Name,
		Address:   nullString(s.Address),
		Contact:   nullString(s.Contact),
		CreatedAt: s.CreatedAt.UTC(),
	}
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return user.School{}, errors.Wrap(database.ClassifyError(err), "inserting school")
	}
	return row.school(), nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string) (user.School, error) {
	var row schoolRow
	q := "SELECT " + schoolColumns + " FROM schools WHERE id = $1"
	if err := sqlx.GetContext(ctx, repo.db, &row, q, id); err != nil {
		return user.School{}, trapNoRowsErr(err, user.ErrSchoolNotFound, "selecting school")
	}
	return row.school(), nil
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM schools WHERE id = $1", id); err != nil {
		return errors.Wrap(database.ClassifyError(err), "deleting school")
	}
	return nil
}

func (repo *schoolRepository) ListSchools(ctx context.Context) ([]user.School, error) {
	rows := make([]schoolRow, 0)
	q := "SELECT " + schoolColumns + " FROM schools ORDER BY created_at, id"
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(database.ClassifyError(err), "listing schools")
	}
	schools := make([]user.School, 0, len(rows))
	for _, row := range rows {
		schools = append(schools, row.school())
	}
	return schools, nil
}
