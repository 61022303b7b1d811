package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/user"
	"github.com/trezcool/sapp/storage/database"
)

const studentColumns = "uid, name, email, roll_number, grade, status, school_id, created_at"

type studentRow struct {
	UID        string      `db:"uid"`
	Name       string      `db:"name"`
	Email      string      `db:"email"`
	RollNumber null.String `db:"roll_number"`
	Grade      null.String `db:"grade"`
	Status     string      `db:"status"`
	SchoolID   null.String `db:"school_id"`
	CreatedAt  time.Time   `db:"created_at"`
}

func (row studentRow) student() user.Student {
	return user.Student{
		UID:        row.UID,
		Name:       row.Name,
		Email:      row.Email,
		RollNumber: row.RollNumber.String,
		Grade:      row.Grade.String,
		Status:     user.Status(row.Status),
		SchoolID:   row.SchoolID.String,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

type studentRepository struct {
	db core.DBExecutor
}

var _ user.StudentRepository = (*studentRepository)(nil)

func NewStudentRepository(db core.DBExecutor) user.StudentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) PutStudent(ctx context.Context, s user.Student) error {
	q := `INSERT INTO students (` + studentColumns + `)
		VALUES (:uid, :name, :email, :roll_number, :grade, :status, :school_id, :created_at)
		ON CONFLICT (uid) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, roll_number = EXCLUDED.roll_number,
			grade = EXCLUDED.grade, status = EXCLUDED.status, school_id = EXCLUDED.school_id`
	row := studentRow{
		UID:        s.UID,
		Name:       s.Name,
		Email:      s.Email,
		RollNumber: nullString(s.RollNumber),
		Grade:      nullString(s.Grade),
		Status:     string(s.Status),
		SchoolID:   nullString(s.SchoolID),
		CreatedAt:  s.CreatedAt.UTC(),
	}
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return errors.Wrap(database.ClassifyError(err), "upserting student")
	}
	return nil
}

func (repo *studentRepository) DeleteStudent(ctx context.Context, uid string) error {
	if _, err := repo.db.ExecContext(ctx, "DELETE FROM students WHERE uid = $1", uid); err != nil {
		return errors.Wrap(database.ClassifyError(err), "deleting student")
	}
	return nil
}

func (repo *studentRepository) ScanStudents(ctx context.Context, filter user.Filter) ([]user.Student, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Field == user.FieldRole {
		return nil, errors.Wrap(user.ErrInvalidFilter, "students have no role column")
	}

	q := "SELECT " + studentColumns + " FROM students"
	var args []interface{}
	if filter.Field != "" {
		q += " WHERE " + filter.Field + " = $1"
		args = append(args, filter.Value)
	}
	q += " ORDER BY created_at, uid"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows := make([]studentRow, 0)
	if err := sqlx.SelectContext(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(database.ClassifyError(err), "scanning students")
	}
	students := make([]user.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *studentRepository) SetStudentStatus(ctx context.Context, uid string, status user.Status) error {
	res, err := repo.db.ExecContext(ctx, "UPDATE students SET status = $1 WHERE uid = $2", string(status), uid)
	if err != nil {
		return errors.Wrap(database.ClassifyError(err), "updating student status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}
