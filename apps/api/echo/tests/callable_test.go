package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sapp/core/identity"
	"github.com/trezcool/sapp/core/user"
)

func callableErr(status, message string) []byte {
	return []byte(`{"error":{"status":"` + status + `","message":"` + message + `"}}`)
}

func callableOk(message string) []byte {
	return []byte(`{"result":{"success":true,"message":"` + message + `"}}`)
}

func Test_callableApi_deleteUser(t *testing.T) {
	app := setup(t)
	adm := app.createUser(t, "admin@school.io", "secret1", "Admin", user.RoleAdmin, "s1")
	app.createUser(t, "student@school.io", "secret1", "Student", user.RoleStudent, "s1")
	target := app.createUser(t, "target@school.io", "secret1", "Target", user.RoleTeacher, "s1")

	adminToken := app.login(t, "admin@school.io", "secret1")
	studentToken := app.login(t, "student@school.io", "secret1")

	body := func(uid string) []byte { return []byte(`{"data":{"userId":"` + uid + `"}}`) }

	tests := []httpTest{
		{
			name:     "anonymous",
			body:     body(target.UID),
			wantCode: http.StatusUnauthorized,
			wantData: callableErr("UNAUTHENTICATED", "user must be logged in"),
		},
		{
			name:     "invalid token",
			body:     body(target.UID),
			token:    "not-a-token",
			wantCode: http.StatusUnauthorized,
			wantData: callableErr("UNAUTHENTICATED", "user must be logged in"),
		},
		{
			name:     "student",
			body:     body(target.UID),
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: callableErr("PERMISSION_DENIED", "only admin and management users can delete users"),
		},
		{
			name:     "no user ID",
			body:     body(" "),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: callableErr("INVALID_ARGUMENT", "user ID is required"),
		},
		{
			name:     "admin",
			body:     body(target.UID),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: callableOk("User deleted successfully from both the profile store and authentication"),
		},
		{
			name:     "admin, already deleted",
			body:     body(target.UID),
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: callableOk("User deleted successfully from both the profile store and authentication"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/callable/deleteUser", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	ctx := context.Background()
	_, err := app.profiles.GetProfile(ctx, target.UID)
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = app.idp.Authenticate(ctx, "target@school.io", "secret1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = app.profiles.GetProfile(ctx, adm.UID)
	assert.NoError(t, err)
}

func Test_callableApi_deleteUser_student(t *testing.T) {
	app := setup(t)
	app.createSchool(t, "s1")
	app.createUser(t, "mgmt@school.io", "secret1", "Manager", user.RoleManagement, "s1")
	token := app.login(t, "mgmt@school.io", "secret1")

	// a provisioned student carries an enrollment record
	req, rec := newAuthRequest(http.MethodPost, "/v1/users", token,
		[]byte(`{"email":"kid@school.io","password":"secret1","name":"Kid","role":"student","roll_number":"R1"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var kid user.Profile
	decode(t, rec, &kid)

	req, rec = newAuthRequest(http.MethodPost, "/v1/callable/deleteUser", token, []byte(`{"data":{"userId":"`+kid.UID+`"}}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	students, err := app.students.ScanStudents(context.Background(), user.Filter{})
	require.NoError(t, err)
	assert.Empty(t, students)
}

func Test_callableApi_updateUserPassword(t *testing.T) {
	app := setup(t)
	app.createUser(t, "teacher@school.io", "secret1", "Teacher", user.RoleTeacher, "s1")
	student := app.createUser(t, "student@school.io", "secret1", "Ann", user.RoleStudent, "s1")

	teacherToken := app.login(t, "teacher@school.io", "secret1")
	studentToken := app.login(t, "student@school.io", "secret1")

	body := func(uid, pwd string) []byte { return []byte(`{"data":{"uid":"` + uid + `","password":"` + pwd + `"}}`) }
	invalid := callableErr("INVALID_ARGUMENT", "user ID and a password of at least 6 characters are required")

	tests := []httpTest{
		{
			name:     "anonymous",
			body:     body(student.UID, "secret2"),
			wantCode: http.StatusUnauthorized,
			wantData: callableErr("UNAUTHENTICATED", "user must be logged in"),
		},
		{
			name:     "student",
			body:     body(student.UID, "secret2"),
			token:    studentToken,
			wantCode: http.StatusForbidden,
			wantData: callableErr("PERMISSION_DENIED", "only teachers, management and admin users can change passwords"),
		},
		{name: "no uid", body: body("", "secret2"), token: teacherToken, wantCode: http.StatusBadRequest, wantData: invalid},
		{name: "5 characters", body: body(student.UID, "abcde"), token: teacherToken, wantCode: http.StatusBadRequest, wantData: invalid},
		{name: "malformed", body: []byte(`{"data":`), token: teacherToken, wantCode: http.StatusBadRequest},
		{
			name:     "6 characters",
			body:     body(student.UID, "abcdef"),
			token:    teacherToken,
			wantCode: http.StatusOK,
			wantData: callableOk("Password updated successfully"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/callable/updateUserPassword", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// the new password works, the old one and the sessions issued with it do not
	app.login(t, "student@school.io", "abcdef")
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", []byte(`{"email":"student@school.io","password":"secret1"}`))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sent := app.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "password_changed", sent[0].TemplateName)
	assert.Equal(t, "student@school.io", sent[0].To[0].Address)
}

func Test_callableApi_createSchool(t *testing.T) {
	app := setup(t)
	app.createUser(t, "admin@school.io", "secret1", "Admin", user.RoleAdmin, "")
	app.createUser(t, "mgmt@school.io", "secret1", "Manager", user.RoleManagement, "s1")

	adminToken := app.login(t, "admin@school.io", "secret1")
	mgmtToken := app.login(t, "mgmt@school.io", "secret1")

	body := []byte(`{"data":{"name":"Hill Side","address":"1 Hill Rd","principalEmail":"Head@hill.io","password":"secret1"}}`)

	tests := []httpTest{
		{
			name:     "anonymous",
			body:     body,
			wantCode: http.StatusUnauthorized,
			wantData: callableErr("UNAUTHENTICATED", "user must be logged in"),
		},
		{
			name:     "management",
			body:     body,
			token:    mgmtToken,
			wantCode: http.StatusForbidden,
			wantData: callableErr("PERMISSION_DENIED", "only admin users can create schools"),
		},
		{
			name:     "no name",
			body:     []byte(`{"data":{"principalEmail":"head@hill.io","password":"secret1"}}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/callable/createSchool", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/callable/createSchool", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Result struct {
				Success      bool   `json:"success"`
				Message      string `json:"message"`
				SchoolID     string `json:"schoolId"`
				PrincipalUID string `json:"principalUid"`
			} `json:"result"`
		}
		decode(t, rec, &res)
		assert.True(t, res.Result.Success)
		assert.Equal(t, "School created successfully", res.Result.Message)

		school, err := app.schools.GetSchool(context.Background(), res.Result.SchoolID)
		require.NoError(t, err)
		assert.Equal(t, "Hill Side", school.Name)
		assert.Equal(t, "1 Hill Rd", school.Address)

		principal, err := app.profiles.GetProfile(context.Background(), res.Result.PrincipalUID)
		require.NoError(t, err)
		assert.Equal(t, user.RoleManagement, principal.Role)
		assert.Equal(t, school.ID, principal.SchoolID)
		assert.Equal(t, "Principal - Hill Side", principal.Name)
		assert.Equal(t, "head@hill.io", principal.Email)
	})
}
