package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/sapp/core"
)

// Role is the single access class held by a profile.
type Role string

// Roles
const (
	RoleAdmin      Role = "admin"
	RoleManagement Role = "management"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
)

var (
	AllRoles = RoleSet{RoleAdmin, RoleManagement, RoleTeacher, RoleStudent}

	rolePriorities = map[Role]int{
		RoleAdmin:      40,
		RoleManagement: 30,
		RoleTeacher:    20,
		RoleStudent:    10,
	}
)

func ParseRole(s string) (Role, error) {
	r := Role(core.CleanString(s, true /* lower */))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

// Priority ranks roles; unknown roles rank 0.
func (r Role) Priority() int { return rolePriorities[r] }

// Outranks reports whether r ranks strictly above other.
func (r Role) Outranks(other Role) bool { return r.Priority() > other.Priority() }

func (r Role) String() string { return string(r) }

// RoleSet is an unordered set of roles.
type RoleSet []Role

func (rs RoleSet) Contains(r Role) bool {
	for _, role := range rs {
		if role == r {
			return true
		}
	}
	return false
}

func (rs RoleSet) Strings() []string {
	strs := make([]string, 0, len(rs))
	for _, r := range rs {
		strs = append(strs, string(r))
	}
	return strs
}

// Status of a profile or student enrollment.
type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusPending }

// Profile is the per-account record holding the application role.
type Profile struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	SchoolID      string    `json:"school_id,omitempty"`
	Subject       string    `json:"subject,omitempty"`     // teachers
	RollNumber    string    `json:"roll_number,omitempty"` // students
	IsSystemAdmin bool      `json:"is_system_admin,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (p Profile) IsAdmin() bool  { return p.Role == RoleAdmin }
func (p Profile) IsActive() bool { return p.Status == StatusActive }

func (p Profile) HasRole(roles ...Role) bool { return RoleSet(roles).Contains(p.Role) }

// DisplayName falls back to the email's local part.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if i := strings.Index(p.Email, "@"); i > 0 {
		return p.Email[:i]
	}
	return p.Email
}

// Student is the secondary enrollment record of a student profile.
type Student struct {
	UID        string    `json:"uid"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	RollNumber string    `json:"roll_number,omitempty"`
	Grade      string    `json:"grade,omitempty"`
	Status     Status    `json:"status"`
	SchoolID   string    `json:"school_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// UpdateProfile defines what information may be provided to modify an existing Profile.
// Nil fields are left untouched.
type UpdateProfile struct {
	Name       *string `json:"name" validate:"omitempty,notblank"`
	Status     *Status `json:"status" validate:"omitempty,status"`
	SchoolID   *string `json:"school_id"`
	Subject    *string `json:"subject"`
	RollNumber *string `json:"roll_number"`
}

func (uu *UpdateProfile) IsEmpty() bool {
	return uu.Name == nil && uu.Status == nil && uu.SchoolID == nil && uu.Subject == nil && uu.RollNumber == nil
}

// NameOnly reports whether uu changes nothing but the name.
func (uu *UpdateProfile) NameOnly() bool {
	return uu.Status == nil && uu.SchoolID == nil && uu.Subject == nil && uu.RollNumber == nil
}

func (uu *UpdateProfile) Validate() error {
	if uu.Name != nil {
		name := core.CleanString(*uu.Name)
		uu.Name = &name
	}
	if uu.SchoolID != nil {
		schoolID := core.CleanString(*uu.SchoolID)
		uu.SchoolID = &schoolID
	}
	return core.Validate.Struct(uu)
}

// Apply copies the set fields onto p.
func (uu UpdateProfile) Apply(p *Profile) {
	if uu.Name != nil {
		p.Name = *uu.Name
	}
	if uu.Status != nil {
		p.Status = *uu.Status
	}
	if uu.SchoolID != nil {
		p.SchoolID = *uu.SchoolID
	}
	if uu.Subject != nil {
		p.Subject = *uu.Subject
	}
	if uu.RollNumber != nil {
		p.RollNumber = *uu.RollNumber
	}
}

// Filterable fields
const (
	FieldRole     = "role"
	FieldStatus   = "status"
	FieldSchoolID = "school_id"
	FieldEmail    = "email"
)

var filterFields = map[string]bool{FieldRole: true, FieldStatus: true, FieldSchoolID: true, FieldEmail: true}

// Filter is an equality predicate on one field. An empty Field matches everything.
type Filter struct {
	Field string
	Value string
	Limit int // 0: no limit
}

func (f Filter) Validate() error {
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	if f.Field != "" && !filterFields[f.Field] {
		return fmt.Errorf("%w: %q", ErrInvalidFilter, f.Field)
	}
	switch {
	case f.Field == FieldRole && !Role(f.Value).Valid():
		return fmt.Errorf("%w: unknown role %q", ErrInvalidFilter, f.Value)
	case f.Field == FieldStatus && !Status(f.Value).Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Value)
	}
	return nil
}

// Matches applies the predicate to p (in-memory stores).
func (f Filter) Matches(p Profile) bool {
	switch f.Field {
	case "":
		return true
	case FieldRole:
		return string(p.Role) == f.Value
	case FieldStatus:
		return string(p.Status) == f.Value
	case FieldSchoolID:
		return p.SchoolID == f.Value
	case FieldEmail:
		return p.Email == f.Value
	}
	return false
}

// MatchesStudent applies the predicate to s; FieldRole never matches.
func (f Filter) MatchesStudent(s Student) bool {
	switch f.Field {
	case "":
		return true
	case FieldStatus:
		return string(s.Status) == f.Value
	case FieldSchoolID:
		return s.SchoolID == f.Value
	case FieldEmail:
		return s.Email == f.Value
	}
	return false
}

func RoleFilter(r Role) Filter { return Filter{Field: FieldRole, Value: string(r)} }
