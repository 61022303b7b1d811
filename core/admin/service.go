// Package admin implements the privileged account operations that must run
// in a trusted context: deleting users, resetting passwords, provisioning accounts and schools.
package admin

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
)

var (
	// DeleteUserRoles may delete any user.
	DeleteUserRoles = user.RoleSet{user.RoleAdmin, user.RoleManagement}
	// UpdatePasswordRoles may set the password of any user.
	UpdatePasswordRoles = user.RoleSet{user.RoleTeacher, user.RoleManagement, user.RoleAdmin}
	// ProvisionRoles may create accounts of a lower-ranked role.
	ProvisionRoles = user.RoleSet{user.RoleAdmin, user.RoleManagement, user.RoleTeacher}
	// CreateSchoolRoles may open schools.
	CreateSchoolRoles = user.RoleSet{user.RoleAdmin}
)

// Operation names
const (
	OpDeleteUser         = "deleteUser"
	OpUpdateUserPassword = "updateUserPassword"
	OpProvision          = "provision"
	OpCreateSystemAdmin  = "createSystemAdmin"
	OpCreateSchool       = "createSchool"
)

const (
	msgUnauthenticated = "user must be logged in"
	msgDeleteDenied    = "only admin and management users can delete users"
	msgPasswordDenied  = "only teachers, management and admin users can change passwords"
	msgProvisionDenied = "you are not allowed to create users with this role"
	msgInitialized     = "the system is already initialized"
	msgUserIDRequired  = "user ID is required"
	msgPasswordInvalid = "user ID and a password of at least 6 characters are required"
	msgSchoolDenied    = "only admin users can create schools"

	msgUserDeleted     = "User deleted successfully from both the profile store and authentication"
	msgPasswordUpdated = "Password updated successfully"
	msgSchoolCreated   = "School created successfully"

	principalNamePrefix = "Principal - "
)

// Result is the success payload of a privileged operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewUser contains information needed to provision an account and its profile.
type NewUser struct {
	Email      string    `json:"email" validate:"required,email"`
	Password   string    `json:"password" validate:"required,pwdminlen"`
	Name       string    `json:"name" validate:"required,notblank"`
	Role       user.Role `json:"role" validate:"required,role"`
	SchoolID   string    `json:"school_id"`
	Subject    string    `json:"subject"`
	RollNumber string    `json:"roll_number"`
	Grade      string    `json:"grade"`
}

func (nu *NewUser) Validate() error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Name = core.CleanString(nu.Name)
	nu.Role = user.Role(core.CleanString(string(nu.Role), true /* lower */))
	nu.SchoolID = core.CleanString(nu.SchoolID)
	return core.Validate.Struct(nu)
}

// NewSchool contains information needed to open a school and provision its management account.
type NewSchool struct {
	Name              string `json:"name" validate:"required,notblank"`
	Address           string `json:"address"`
	Contact           string `json:"contact"`
	PrincipalEmail    string `json:"principal_email" validate:"required,email"`
	PrincipalPassword string `json:"principal_password" validate:"required,pwdminlen"`
}

func (ns *NewSchool) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.PrincipalEmail = core.CleanString(ns.PrincipalEmail, true /* lower */)
	return core.Validate.Struct(ns)
}

// SchoolCreated is the outcome of CreateSchool.
type SchoolCreated struct {
	Result
	School    user.School  `json:"school"`
	Principal user.Profile `json:"principal"`
}

type Service struct {
	profiles user.Repository
	students user.StudentRepository
	schools  user.SchoolRepository
	accounts identity.Admin
	mailSvc  core.EmailService
	logger   core.Logger
	rec      core.Recorder
}

func NewService(
	profiles user.Repository,
	students user.StudentRepository,
	schools user.SchoolRepository,
	accounts identity.Admin,
	mailSvc core.EmailService,
	logger core.Logger,
	rec core.Recorder,
) *Service {
	if rec == nil {
		rec = core.NopRecorder
	}
	return &Service{
		profiles: profiles,
		students: students,
		schools:  schools,
		accounts: accounts,
		mailSvc:  mailSvc,
		logger:   logger,
		rec:      rec,
	}
}

// authorize re-reads the caller's profile on every call: roles are never cached.
func (svc *Service) authorize(ctx context.Context, caller *identity.Session, roles user.RoleSet, deniedMsg string) (user.Profile, error) {
	if caller == nil || caller.UID == "" {
		return user.Profile{}, core.NewError(core.KindUnauthenticated, msgUnauthenticated)
	}
	p, err := svc.profiles.GetProfile(ctx, caller.UID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, core.NewError(core.KindPermissionDenied, deniedMsg)
		}
		if core.IsConfigurationFault(err) {
			return user.Profile{}, err
		}
		return user.Profile{}, core.NewError(core.KindInternal, "reading caller profile", err)
	}
	if !roles.Contains(p.Role) {
		return user.Profile{}, core.NewError(core.KindPermissionDenied, deniedMsg)
	}
	return p, nil
}

// DeleteUser removes the profile, the student record (best-effort) and the account of targetUID.
// Retrying after a partial failure completes the remaining steps.
func (svc *Service) DeleteUser(ctx context.Context, caller *identity.Session, targetUID string) (Result, error) {
	res, err := svc.deleteUser(ctx, caller, strings.TrimSpace(targetUID))
	svc.rec.AdminOp(OpDeleteUser, core.KindOf(err))
	return res, err
}

func (svc *Service) deleteUser(ctx context.Context, caller *identity.Session, targetUID string) (Result, error) {
	callerProfile, err := svc.authorize(ctx, caller, DeleteUserRoles, msgDeleteDenied)
	if err != nil {
		return Result{}, err
	}
	if targetUID == "" {
		return Result{}, core.NewError(core.KindInvalidArgument, msgUserIDRequired)
	}

	if err := svc.profiles.DeleteProfile(ctx, targetUID); err != nil {
		return Result{}, deleteFailure(err)
	}

	if err := svc.students.DeleteStudent(ctx, targetUID); err != nil {
		// not every user has a student record
		svc.logger.Debug("deleting student record", err, map[string]interface{}{"uid": targetUID})
	}

	if err := svc.accounts.DeleteAccount(ctx, targetUID); err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		svc.logger.Error(
			"account deletion failed after profile deletion",
			err, callerProfile, map[string]interface{}{"uid": targetUID, "orphan": "account"},
		)
		return Result{}, deleteFailure(errors.Wrapf(err, "profile deleted but account %s remains", targetUID))
	}

	svc.logger.Info("user deleted", callerProfile, map[string]interface{}{"uid": targetUID})
	return Result{Success: true, Message: msgUserDeleted}, nil
}

func deleteFailure(err error) error {
	if core.IsConfigurationFault(err) {
		return err
	}
	return core.NewError(core.KindInternal, "Failed to delete user", err)
}

// UpdateUserPassword sets the password of targetUID. The password is never logged.
func (svc *Service) UpdateUserPassword(ctx context.Context, caller *identity.Session, targetUID, newPassword string) (Result, error) {
	res, err := svc.updateUserPassword(ctx, caller, strings.TrimSpace(targetUID), newPassword)
	svc.rec.AdminOp(OpUpdateUserPassword, core.KindOf(err))
	return res, err
}

func (svc *Service) updateUserPassword(ctx context.Context, caller *identity.Session, targetUID, newPassword string) (Result, error) {
	callerProfile, err := svc.authorize(ctx, caller, UpdatePasswordRoles, msgPasswordDenied)
	if err != nil {
		return Result{}, err
	}
	if targetUID == "" || !user.ValidPassword(newPassword) {
		return Result{}, core.NewError(core.KindInvalidArgument, msgPasswordInvalid)
	}

	if err := svc.accounts.SetPassword(ctx, targetUID, newPassword); err != nil {
		return Result{}, core.NewError(core.KindInternal, "Failed to update password", err)
	}
	svc.logger.Info("user password updated", callerProfile, map[string]interface{}{"uid": targetUID})

	if target, err := svc.profiles.GetProfile(ctx, targetUID); err == nil {
		svc.notify(target, "Your password was changed", "password_changed")
	}
	return Result{Success: true, Message: msgPasswordUpdated}, nil
}

// Provision creates an account then its profile. A failed profile write deletes the account again.
func (svc *Service) Provision(ctx context.Context, caller *identity.Session, nu NewUser) (user.Profile, error) {
	p, err := svc.provision(ctx, caller, nu)
	svc.rec.AdminOp(OpProvision, core.KindOf(err))
	return p, err
}

func (svc *Service) provision(ctx context.Context, caller *identity.Session, nu NewUser) (user.Profile, error) {
	callerProfile, err := svc.authorize(ctx, caller, ProvisionRoles, msgProvisionDenied)
	if err != nil {
		return user.Profile{}, err
	}
	if err := nu.Validate(); err != nil {
		return user.Profile{}, err
	}
	if !callerProfile.Role.Outranks(nu.Role) {
		return user.Profile{}, core.NewError(core.KindPermissionDenied, msgProvisionDenied)
	}
	if nu.SchoolID == "" {
		nu.SchoolID = callerProfile.SchoolID
	}
	if !callerProfile.ManagesSchool(nu.SchoolID) {
		return user.Profile{}, user.ErrOutsideSchool
	}
	if err := user.CheckSchool(ctx, svc.schools, nu.SchoolID); err != nil {
		return user.Profile{}, err
	}

	p, err := svc.create(ctx, nu, false)
	if err != nil {
		return user.Profile{}, err
	}
	svc.logger.Info("user provisioned", callerProfile, map[string]interface{}{"uid": p.UID, "role": p.Role})
	return p, nil
}

// CreateSchool opens a school then provisions its management account.
// A failed provisioning deletes the school again.
func (svc *Service) CreateSchool(ctx context.Context, caller *identity.Session, ns NewSchool) (SchoolCreated, error) {
	res, err := svc.createSchool(ctx, caller, ns)
	svc.rec.AdminOp(OpCreateSchool, core.KindOf(err))
	return res, err
}

func (svc *Service) createSchool(ctx context.Context, caller *identity.Session, ns NewSchool) (SchoolCreated, error) {
	callerProfile, err := svc.authorize(ctx, caller, CreateSchoolRoles, msgSchoolDenied)
	if err != nil {
		return SchoolCreated{}, err
	}
	if err := ns.Validate(); err != nil {
		return SchoolCreated{}, err
	}

	// step 1: school
	school, err := svc.schools.InsertSchool(ctx, user.NewSchool(ns.Name, ns.Address, ns.Contact))
	if err != nil {
		if core.IsConfigurationFault(err) {
			return SchoolCreated{}, err
		}
		return SchoolCreated{}, core.NewError(core.KindInternal, "creating school", err)
	}

	// step 2: management account + profile
	principal, err := svc.create(ctx, NewUser{
		Email:    ns.PrincipalEmail,
		Password: ns.PrincipalPassword,
		Name:     principalNamePrefix + school.Name,
		Role:     user.RoleManagement,
		SchoolID: school.ID,
	}, false)
	if err != nil {
		if dErr := svc.schools.DeleteSchool(ctx, school.ID); dErr != nil {
			svc.logger.Error("school compensation failed", dErr, map[string]interface{}{"school": school.ID, "orphan": "school"})
		}
		return SchoolCreated{}, err
	}

	svc.logger.Info("school created", callerProfile, map[string]interface{}{"school": school.ID, "principal": principal.UID})
	return SchoolCreated{
		Result:    Result{Success: true, Message: msgSchoolCreated},
		School:    school,
		Principal: principal,
	}, nil
}

// SystemInitialized reports whether an admin profile exists.
func (svc *Service) SystemInitialized(ctx context.Context) (bool, error) {
	admins, err := svc.profiles.ScanProfiles(ctx, user.Filter{Field: user.FieldRole, Value: string(user.RoleAdmin), Limit: 1})
	if err != nil {
		return false, errors.Wrap(err, "scanning admin profiles")
	}
	return len(admins) > 0, nil
}

// CreateSystemAdmin bootstraps the first admin. It is refused once any admin exists.
func (svc *Service) CreateSystemAdmin(ctx context.Context, email, name, password string) (user.Profile, error) {
	p, err := svc.createSystemAdmin(ctx, email, name, password)
	svc.rec.AdminOp(OpCreateSystemAdmin, core.KindOf(err))
	return p, err
}

func (svc *Service) createSystemAdmin(ctx context.Context, email, name, password string) (user.Profile, error) {
	nu := NewUser{Email: email, Name: name, Password: password, Role: user.RoleAdmin}
	if err := nu.Validate(); err != nil {
		return user.Profile{}, err
	}

	initialized, err := svc.SystemInitialized(ctx)
	if err != nil {
		return user.Profile{}, err
	}
	if initialized {
		return user.Profile{}, core.NewError(core.KindPermissionDenied, msgInitialized)
	}

	p, err := svc.create(ctx, nu, true)
	if err != nil {
		return user.Profile{}, err
	}
	svc.logger.Info("system admin created", p)
	return p, nil
}

func (svc *Service) create(ctx context.Context, nu NewUser, systemAdmin bool) (user.Profile, error) {
	// step 1: account
	uid, err := svc.accounts.CreateAccount(ctx, nu.Email, nu.Password)
	if err != nil {
		if errors.Is(err, identity.ErrAccountExists) {
			return user.Profile{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return user.Profile{}, core.NewError(core.KindInternal, "creating account", err)
	}

	// step 2: profile (+ enrollment record)
	p := user.NewProfile(uid, nu.Email, nu.Name, nu.Role)
	p.SchoolID = nu.SchoolID
	p.IsSystemAdmin = systemAdmin
	switch nu.Role {
	case user.RoleTeacher:
		p.Subject = core.CleanString(nu.Subject)
	case user.RoleStudent:
		p.RollNumber = core.CleanString(nu.RollNumber)
		p.Status = user.StatusPending
	}

	p, err = svc.profiles.InsertProfile(ctx, p)
	if err != nil {
		return user.Profile{}, svc.compensate(ctx, uid, false, errors.Wrap(err, "inserting profile"))
	}
	if p.Role == user.RoleStudent {
		st := user.Student{
			UID:        p.UID,
			Name:       p.Name,
			Email:      p.Email,
			RollNumber: p.RollNumber,
			Grade:      core.CleanString(nu.Grade),
			Status:     user.StatusPending,
			SchoolID:   p.SchoolID,
			CreatedAt:  p.CreatedAt,
		}
		if err := svc.students.PutStudent(ctx, st); err != nil {
			return user.Profile{}, svc.compensate(ctx, uid, true, errors.Wrap(err, "writing student record"))
		}
	}

	svc.notify(p, "Welcome to Sapp", "welcome")
	return p, nil
}

// compensate undoes the artifacts of a failed provisioning. A failed undo leaves an orphan that is logged for reconciliation.
func (svc *Service) compensate(ctx context.Context, uid string, profileWritten bool, cause error) error {
	if profileWritten {
		if err := svc.profiles.DeleteProfile(ctx, uid); err != nil {
			svc.logger.Error("provisioning compensation failed", err, map[string]interface{}{"uid": uid, "orphan": "profile"})
		}
	}
	if err := svc.accounts.DeleteAccount(ctx, uid); err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
		svc.logger.Error("provisioning compensation failed", err, map[string]interface{}{"uid": uid, "orphan": "account"})
		return core.NewError(core.KindInternal, fmt.Sprintf("provisioning failed and account %s could not be removed", uid), cause)
	}
	if core.IsConfigurationFault(cause) {
		return cause
	}
	return core.NewError(core.KindInternal, "provisioning failed", cause)
}

func (svc *Service) notify(p user.Profile, subject, tmpl string) {
	if svc.mailSvc == nil || p.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: p.DisplayName(), Address: p.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{"Name": p.DisplayName(), "Email": p.Email, "Role": string(p.Role)},
	})
}
