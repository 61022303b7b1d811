package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/sapp/core/user"
)

type profileRepository struct {
	db *profileTable
}

var _ user.Repository = (*profileRepository)(nil)

func NewProfileRepository(db *DB) user.Repository {
	return &profileRepository{db: db.profiles}
}

func (repo *profileRepository) GetProfile(_ context.Context, uid string) (user.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.table[uid]; ok {
		return p, nil
	}
	return user.Profile{}, user.ErrNotFound
}

func (repo *profileRepository) InsertProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[p.UID]; ok {
		return user.Profile{}, user.ErrProfileExists
	}
	repo.db.table[p.UID] = p
	return p, nil
}

func (repo *profileRepository) UpdateProfile(_ context.Context, uid string, uu user.UpdateProfile) (user.Profile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.table[uid]
	if !ok {
		return user.Profile{}, user.ErrNotFound
	}
	uu.Apply(&p)
	p.UpdatedAt = time.Now().UTC()
	repo.db.table[uid] = p
	return p, nil
}

func (repo *profileRepository) DeleteProfile(_ context.Context, uid string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.table, uid)
	return nil
}

func (repo *profileRepository) ScanProfiles(_ context.Context, filter user.Filter) ([]user.Profile, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	profiles := make([]user.Profile, 0)
	for _, p := range repo.db.table {
		if filter.Matches(p) {
			profiles = append(profiles, p)
		}
	}
	// same order as the SQL store: oldest first
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].UID < profiles[j].UID
		}
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
	if filter.Limit > 0 && len(profiles) > filter.Limit {
		profiles = profiles[:filter.Limit]
	}
	return profiles, nil
}
