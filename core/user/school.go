package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/sapp/core"
)

var (
	ErrSchoolNotFound = errors.New("school not found")
	errSchoolRequired = errors.New("school_id is required")

	// ErrOutsideSchool is returned when a caller below admin acts on another school's members.
	ErrOutsideSchool = core.NewError(core.KindPermissionDenied, "you can only manage users of your own school")
)

// School is the tenant every non-admin profile belongs to.
type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewSchool returns a School with a fresh ID.
func NewSchool(name, address, contact string) School {
	return School{
		ID:        uuid.NewString(),
		Name:      core.CleanString(name),
		Address:   core.CleanString(address),
		Contact:   core.CleanString(contact),
		CreatedAt: time.Now().UTC(),
	}
}

// SchoolRepository stores schools by ID.
type SchoolRepository interface {
	InsertSchool(ctx context.Context, s School) (School, error)
	// GetSchool returns ErrSchoolNotFound when no school exists for id.
	GetSchool(ctx context.Context, id string) (School, error)
	// DeleteSchool is a no-op when no school exists for id.
	DeleteSchool(ctx context.Context, id string) error
	// ListSchools returns every school, oldest first.
	ListSchools(ctx context.Context) ([]School, error)
}

// ManagesSchool reports whether p may act on the members of schoolID. Admins act on every school.
func (p Profile) ManagesSchool(schoolID string) bool {
	return p.IsAdmin() || (p.SchoolID != "" && p.SchoolID == schoolID)
}

// CheckSchool returns a validation error unless id names an existing school.
func CheckSchool(ctx context.Context, schools SchoolRepository, id string) error {
	if id == "" {
		return core.NewValidationError(errSchoolRequired, core.FieldError{Field: "school_id", Error: errSchoolRequired.Error()})
	}
	if _, err := schools.GetSchool(ctx, id); err != nil {
		if errors.Is(err, ErrSchoolNotFound) {
			return core.NewValidationError(err, core.FieldError{Field: "school_id", Error: "unknown school"})
		}
		return err
	}
	return nil
}
