package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core/user"
)

type schoolRepository struct {
	db *schoolTable
}

var _ user.SchoolRepository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) user.SchoolRepository {
	return &schoolRepository{db: db.schools}
}

func (repo *schoolRepository) InsertSchool(_ context.Context, s user.School) (user.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[s.ID]; ok {
		return user.School{}, errors.Errorf("school %s already exists", s.ID)
	}
	repo.db.table[s.ID] = s
	return s, nil
}

func (repo *schoolRepository) GetSchool(_ context.Context, id string) (user.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	s, ok := repo.db.table[id]
	if !ok {
		return user.School{}, user.ErrSchoolNotFound
	}
	return s, nil
}

func (repo *schoolRepository) DeleteSchool(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.table, id)
	return nil
}

func (repo *schoolRepository) ListSchools(_ context.Context) ([]user.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schools := make([]user.School, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		schools = append(schools, s)
	}
	sort.Slice(schools, func(i, j int) bool {
		if schools[i].CreatedAt.Equal(schools[j].CreatedAt) {
			return schools[i].ID < schools[j].ID
		}
		return schools[i].CreatedAt.Before(schools[j].CreatedAt)
	})
	return schools, nil
}
