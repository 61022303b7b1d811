package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core/user"
)

type studentRepository struct {
	db *studentTable
}

var _ user.StudentRepository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) user.StudentRepository {
	return &studentRepository{db: db.students}
}

func (repo *studentRepository) PutStudent(_ context.Context, s user.Student) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[s.UID] = s
	return nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, uid string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.table, uid)
	return nil
}

func (repo *studentRepository) ScanStudents(_ context.Context, filter user.Filter) ([]user.Student, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Field == user.FieldRole {
		return nil, errors.Wrap(user.ErrInvalidFilter, "students have no role")
	}

	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]user.Student, 0)
	for _, s := range repo.db.table {
		if filter.MatchesStudent(s) {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].CreatedAt.Equal(students[j].CreatedAt) {
			return students[i].UID < students[j].UID
		}
		return students[i].CreatedAt.Before(students[j].CreatedAt)
	})
	if filter.Limit > 0 && len(students) > filter.Limit {
		students = students[:filter.Limit]
	}
	return students, nil
}

func (repo *studentRepository) SetStudentStatus(_ context.Context, uid string, status user.Status) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.table[uid]
	if !ok {
		return user.ErrNotFound
	}
	s.Status = status
	repo.db.table[uid] = s
	return nil
}
