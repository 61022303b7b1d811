package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
)

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	repo := NewProfileRepository(db)

	now := time.Now().UTC()
	for i, p := range []user.Profile{
		{UID: "b", Email: "b@school.io", Role: user.RoleStudent, Status: user.StatusPending, SchoolID: "s1", CreatedAt: now},
		{UID: "a", Email: "a@school.io", Role: user.RoleAdmin, Status: user.StatusActive, CreatedAt: now},
		{UID: "c", Email: "c@school.io", Role: user.RoleStudent, Status: user.StatusActive, SchoolID: "s2", CreatedAt: now.Add(-time.Hour)},
	} {
		_, err := repo.InsertProfile(ctx, p)
		require.NoError(t, err, i)
	}

	_, err := repo.InsertProfile(ctx, user.Profile{UID: "a"})
	assert.ErrorIs(t, err, user.ErrProfileExists)

	_, err = repo.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, user.ErrNotFound)

	tests := []struct {
		name    string
		filter  user.Filter
		want    []string
		wantErr error
	}{
		{"oldest first, then by uid", user.Filter{}, []string{"c", "a", "b"}, nil},
		{"students", user.RoleFilter(user.RoleStudent), []string{"c", "b"}, nil},
		{"first admin", user.Filter{Field: user.FieldRole, Value: "admin", Limit: 1}, []string{"a"}, nil},
		{"pending", user.Filter{Field: user.FieldStatus, Value: "pending"}, []string{"b"}, nil},
		{"limit", user.Filter{Limit: 2}, []string{"c", "a"}, nil},
		{"unknown field", user.Filter{Field: "name"}, nil, user.ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := repo.ScanProfiles(ctx, tt.filter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got := make([]string, 0, len(profiles))
			for _, p := range profiles {
				got = append(got, p.UID)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	name := "Bee"
	p, err := repo.UpdateProfile(ctx, "b", user.UpdateProfile{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Bee", p.Name)
	assert.True(t, p.UpdatedAt.After(p.CreatedAt) || p.UpdatedAt.Equal(p.CreatedAt))

	_, err = repo.UpdateProfile(ctx, "nobody", user.UpdateProfile{Name: &name})
	assert.ErrorIs(t, err, user.ErrNotFound)

	require.NoError(t, repo.DeleteProfile(ctx, "b"))
	require.NoError(t, repo.DeleteProfile(ctx, "b"))
	_, err = repo.GetProfile(ctx, "b")
	assert.ErrorIs(t, err, user.ErrNotFound)

	db.Reset()
	profiles, err := repo.ScanProfiles(ctx, user.Filter{})
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestStudentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewStudentRepository(NewDB())

	require.NoError(t, repo.PutStudent(ctx, user.Student{UID: "k1", Status: user.StatusPending, SchoolID: "s1"}))
	require.NoError(t, repo.PutStudent(ctx, user.Student{UID: "k2", Status: user.StatusActive, SchoolID: "s1"}))
	require.NoError(t, repo.PutStudent(ctx, user.Student{UID: "k1", Status: user.StatusPending, SchoolID: "s1", Grade: "5"}))

	students, err := repo.ScanStudents(ctx, user.Filter{Field: user.FieldStatus, Value: "pending"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "5", students[0].Grade)

	_, err = repo.ScanStudents(ctx, user.RoleFilter(user.RoleStudent))
	assert.ErrorIs(t, err, user.ErrInvalidFilter)

	require.NoError(t, repo.SetStudentStatus(ctx, "k1", user.StatusActive))
	assert.ErrorIs(t, repo.SetStudentStatus(ctx, "nobody", user.StatusActive), user.ErrNotFound)

	require.NoError(t, repo.DeleteStudent(ctx, "k1"))
	require.NoError(t, repo.DeleteStudent(ctx, "k1"))
	students, err = repo.ScanStudents(ctx, user.Filter{})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "k2", students[0].UID)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(NewDB())

	require.NoError(t, repo.InsertAccount(ctx, identity.Account{UID: "u1", Email: "a@school.io"}))
	require.NoError(t, repo.InsertAccount(ctx, identity.Account{UID: "u2", Email: "b@school.io"}))
	assert.ErrorIs(t, repo.InsertAccount(ctx, identity.Account{UID: "u3", Email: "a@school.io"}), identity.ErrAccountExists)

	acc, err := repo.GetAccountByEmail(ctx, "b@school.io")
	require.NoError(t, err)
	assert.Equal(t, "u2", acc.UID)

	assert.ErrorIs(t, repo.UpdateAccount(ctx, identity.Account{UID: "u2", Email: "a@school.io"}), identity.ErrAccountExists)
	assert.ErrorIs(t, repo.UpdateAccount(ctx, identity.Account{UID: "u9"}), identity.ErrAccountNotFound)

	require.NoError(t, repo.DeleteAccount(ctx, "u1"))
	assert.ErrorIs(t, repo.DeleteAccount(ctx, "u1"), identity.ErrAccountNotFound)
	_, err = repo.GetAccount(ctx, "u1")
	assert.ErrorIs(t, err, identity.ErrAccountNotFound)
}

func TestSchoolRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSchoolRepository(NewDB())

	older := user.NewSchool("Older", "", "")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := user.NewSchool(" Newer ", "1 Main St", "+243")
	for _, s := range []user.School{newer, older} {
		_, err := repo.InsertSchool(ctx, s)
		require.NoError(t, err)
	}
	_, err := repo.InsertSchool(ctx, newer)
	assert.Error(t, err)

	got, err := repo.GetSchool(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Newer", got.Name)

	schools, err := repo.ListSchools(ctx)
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, older.ID, schools[0].ID)

	require.NoError(t, repo.DeleteSchool(ctx, older.ID))
	require.NoError(t, repo.DeleteSchool(ctx, older.ID))
	_, err = repo.GetSchool(ctx, older.ID)
	assert.ErrorIs(t, err, user.ErrSchoolNotFound)
}
