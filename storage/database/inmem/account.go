package inmemdb

import (
	"context"

	"github.com/trezcool/sapp/core/identity"
)

type accountRepository struct {
	db *accountTable
}

var _ identity.AccountRepository = (*accountRepository)(nil)

func NewAccountRepository(db *DB) identity.AccountRepository {
	return &accountRepository{db: db.accounts}
}

func (repo *accountRepository) InsertAccount(_ context.Context, a identity.Account) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, acc := range repo.db.table {
		if acc.Email == a.Email {
			return identity.ErrAccountExists
		}
	}
	if _, ok := repo.db.table[a.UID]; ok {
		return identity.ErrAccountExists
	}
	repo.db.table[a.UID] = a
	return nil
}

func (repo *accountRepository) GetAccount(_ context.Context, uid string) (identity.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.table[uid]; ok {
		return a, nil
	}
	return identity.Account{}, identity.ErrAccountNotFound
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string) (identity.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, a := range repo.db.table {
		if a.Email == email {
			return a, nil
		}
	}
	return identity.Account{}, identity.ErrAccountNotFound
}

func (repo *accountRepository) UpdateAccount(_ context.Context, a identity.Account) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[a.UID]; !ok {
		return identity.ErrAccountNotFound
	}
	for uid, acc := range repo.db.table {
		if uid != a.UID && acc.Email == a.Email {
			return identity.ErrAccountExists
		}
	}
	repo.db.table[a.UID] = a
	return nil
}

func (repo *accountRepository) DeleteAccount(_ context.Context, uid string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[uid]; !ok {
		return identity.ErrAccountNotFound
	}
	delete(repo.db.table, uid)
	return nil
}
