package user

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
)

var (
	// errors
	ErrNotFound      = errors.New("profile not found")
	ErrProfileExists = errors.New("a profile already exists for this account")
	ErrInvalidFilter = errors.New("invalid filter")
)

type (
	// Repository is the Profile Store: one profile per account UID.
	Repository interface {
		// GetProfile returns ErrNotFound when no profile exists for uid.
		GetProfile(ctx context.Context, uid string) (Profile, error)
		// InsertProfile returns ErrProfileExists when a profile exists for p.UID.
		InsertProfile(ctx context.Context, p Profile) (Profile, error)
		UpdateProfile(ctx context.Context, uid string, uu UpdateProfile) (Profile, error)
		// DeleteProfile is a no-op when no profile exists for uid.
		DeleteProfile(ctx context.Context, uid string) error
		ScanProfiles(ctx context.Context, filter Filter) ([]Profile, error)
	}

	// StudentRepository holds the secondary enrollment records of students.
	StudentRepository interface {
		PutStudent(ctx context.Context, s Student) error
		// DeleteStudent is a no-op when no record exists for uid.
		DeleteStudent(ctx context.Context, uid string) error
		// ScanStudents accepts FieldStatus, FieldSchoolID and FieldEmail filters.
		ScanStudents(ctx context.Context, filter Filter) ([]Student, error)
		// SetStudentStatus returns ErrNotFound when no record exists for uid.
		SetStudentStatus(ctx context.Context, uid string, status Status) error
	}

	Service struct {
		repo     Repository
		students StudentRepository
		schools  SchoolRepository
	}
)

func NewService(repo Repository, students StudentRepository, schools SchoolRepository) *Service {
	return &Service{repo: repo, students: students, schools: schools}
}

func (svc *Service) Get(ctx context.Context, uid string) (Profile, error) {
	return svc.repo.GetProfile(ctx, uid)
}

func (svc *Service) Query(ctx context.Context, filter Filter) ([]Profile, error) {
	if err := filter.Validate(); err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: filter.Field, Error: err.Error()})
	}
	return svc.repo.ScanProfiles(ctx, filter)
}

// Update modifies the profile of uid. A new school must exist.
func (svc *Service) Update(ctx context.Context, uid string, uu UpdateProfile) (Profile, error) {
	if err := uu.Validate(); err != nil {
		return Profile{}, err
	}
	if uu.SchoolID != nil {
		if err := CheckSchool(ctx, svc.schools, *uu.SchoolID); err != nil {
			return Profile{}, err
		}
	}
	if uu.IsEmpty() {
		return svc.repo.GetProfile(ctx, uid)
	}
	return svc.repo.UpdateProfile(ctx, uid, uu)
}

// PendingStudents lists the enrollments of schoolID awaiting approval.
func (svc *Service) PendingStudents(ctx context.Context, schoolID string) ([]Student, error) {
	students, err := svc.students.ScanStudents(ctx, Filter{Field: FieldStatus, Value: string(StatusPending)})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "scanning students")
	}
	if schoolID == "" {
		return students, nil
	}
	pending := make([]Student, 0, len(students))
	for _, s := range students {
		if s.SchoolID == schoolID {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// ApproveStudent activates both the enrollment record and the profile of a student of caller's school.
func (svc *Service) ApproveStudent(ctx context.Context, caller Profile, uid string) (Profile, error) {
	p, err := svc.repo.GetProfile(ctx, uid)
	if err != nil {
		return Profile{}, err
	}
	if !caller.ManagesSchool(p.SchoolID) {
		return Profile{}, ErrOutsideSchool
	}
	if p.Role != RoleStudent {
		return Profile{}, core.NewValidationError(errors.New("only students can be approved"))
	}

	if err := svc.students.SetStudentStatus(ctx, uid, StatusActive); err != nil && !errors.Is(err, ErrNotFound) {
		return Profile{}, pkgerrors.Wrap(err, "activating student record")
	}
	active := StatusActive
	return svc.repo.UpdateProfile(ctx, uid, UpdateProfile{Status: &active})
}

// Schools lists every school for admins, and the caller's own school otherwise.
func (svc *Service) Schools(ctx context.Context, caller Profile) ([]School, error) {
	if caller.IsAdmin() {
		return svc.schools.ListSchools(ctx)
	}
	schools := make([]School, 0, 1)
	if caller.SchoolID == "" {
		return schools, nil
	}
	s, err := svc.schools.GetSchool(ctx, caller.SchoolID)
	switch {
	case errors.Is(err, ErrSchoolNotFound):
		return schools, nil
	case err != nil:
		return nil, pkgerrors.Wrap(err, "getting school")
	}
	return append(schools, s), nil
}

// NewProfile returns a Profile with its timestamps set.
func NewProfile(uid, email, name string, role Role) Profile {
	now := time.Now().UTC()
	return Profile{
		UID:       uid,
		Email:     core.CleanString(email, true /* lower */),
		Name:      core.CleanString(name),
		Role:      role,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
