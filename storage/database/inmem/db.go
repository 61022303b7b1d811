// Package inmemdb is a process-local store used by tests and single-node development.
package inmemdb

import (
	"sync"

	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
)

type (
	profileTable struct {
		mutex sync.RWMutex
		table map[string]user.Profile // {uid: Profile}
	}

	studentTable struct {
		mutex sync.RWMutex
		table map[string]user.Student // {uid: Student}
	}

	accountTable struct {
		mutex sync.RWMutex
		table map[string]identity.Account // {uid: Account}
	}

	schoolTable struct {
		mutex sync.RWMutex
		table map[string]user.School // {id: School}
	}

	DB struct {
		profiles *profileTable
		students *studentTable
		accounts *accountTable
		schools  *schoolTable
	}
)

func NewDB() *DB {
	return &DB{
		profiles: &profileTable{table: make(map[string]user.Profile)},
		students: &studentTable{table: make(map[string]user.Student)},
		accounts: &accountTable{table: make(map[string]identity.Account)},
		schools:  &schoolTable{table: make(map[string]user.School)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.profiles.mutex.Lock()
	db.profiles.table = make(map[string]user.Profile)
	db.profiles.mutex.Unlock()

	db.students.mutex.Lock()
	db.students.table = make(map[string]user.Student)
	db.students.mutex.Unlock()

	db.accounts.mutex.Lock()
	db.accounts.table = make(map[string]identity.Account)
	db.accounts.mutex.Unlock()

	db.schools.mutex.Lock()
	db.schools.table = make(map[string]user.School)
	db.schools.mutex.Unlock()
}
