package testutil

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
	logsvc "github.com/trezcool/sapp/services/logger"
)

// NewConfig returns the configuration used by tests: no debug output, no external services.
func NewConfig() *core.Config {
	conf := &core.Config{
		AppName:         "Sapp",
		Env:             "TEST",
		Mode:            core.ModeStandalone,
		TestMode:        true,
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://localhost:3000",
	}
	conf.Server.RequestTimeout = 5 * time.Second
	conf.Auth.TokenTTL = time.Hour
	conf.Auth.RefreshTTL = 24 * time.Hour
	conf.Auth.SelfHeal = true
	conf.Auth.PromoteFirstAdmin = true
	return conf
}

// NewLogger returns a logger writing to buf (discarded when nil).
func NewLogger(buf *bytes.Buffer) core.Logger {
	if buf == nil {
		buf = new(bytes.Buffer)
	}
	return logsvc.NewRollbarLogger(log.New(buf, "", 0), NewConfig())
}

func CreateProfile(t *testing.T, repo user.Repository, uid, email, name string, role user.Role, schoolID string, createdAt ...time.Time) user.Profile {
	t.Helper()
	p := user.NewProfile(uid, email, name, role)
	p.SchoolID = schoolID
	if len(createdAt) > 0 {
		p.CreatedAt = createdAt[0].UTC()
		p.UpdatedAt = p.CreatedAt
	}
	p, err := repo.InsertProfile(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}
	return p
}

// CreateUser creates an account with admin and its profile.
func CreateUser(t *testing.T, admin identity.Admin, repo user.Repository, email, pwd, name string, role user.Role, schoolID string) user.Profile {
	t.Helper()
	uid, err := admin.CreateAccount(context.Background(), email, pwd)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return CreateProfile(t, repo, uid, email, name, role, schoolID)
}

// CreateSchool inserts a school with a fixed id.
func CreateSchool(t *testing.T, repo user.SchoolRepository, id, name string) user.School {
	t.Helper()
	s := user.NewSchool(name, "", "")
	s.ID = id
	s, err := repo.InsertSchool(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return s
}
