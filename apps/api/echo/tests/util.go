package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	. "github.com/trezcool/sapp/apps/api/echo"
	"github.com/trezcool/sapp/core"
	"github.com/trezcool/sapp/core/admin"
	"github.com/trezcool/sapp/core/user"
	"github.com/trezcool/sapp/services/email"
	"github.com/trezcool/sapp/services/identity/local"
	"github.com/trezcool/sapp/services/metrics"
	"github.com/trezcool/sapp/storage/database/inmem"
	"github.com/trezcool/sapp/tests"
)

type testApp struct {
	Server
	profiles user.Repository
	students user.StudentRepository
	schools  user.SchoolRepository
	idp      *localidp.Provider
	mail     *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NewLogger(nil)

	// set up DB & repos
	db := inmemdb.NewDB()
	profiles := inmemdb.NewProfileRepository(db)
	students := inmemdb.NewStudentRepository(db)
	schools := inmemdb.NewSchoolRepository(db)
	idp := localidp.NewProvider(inmemdb.NewAccountRepository(db), localidp.Options{
		SecretKey:  conf.SecretKey,
		Issuer:     conf.AppName,
		TokenTTL:   conf.Auth.TokenTTL,
		RefreshTTL: conf.Auth.RefreshTTL,
		HashCost:   bcrypt.MinCost,
	})

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	rec := metricsvc.NewRecorder("sapp_test")

	// set up server
	app := NewServer(Deps{
		Conf:           conf,
		Logger:         logger,
		Profiles:       profiles,
		UserSvc:        user.NewService(profiles, students, schools),
		AdminSvc:       admin.NewService(profiles, students, schools, idp, mailSvc, logger, rec),
		Verifier:       idp,
		IdP:            idp,
		Metrics:        rec,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Close() })

	return &testApp{Server: app, profiles: profiles, students: students, schools: schools, idp: idp, mail: mailSvc}
}

func (app *testApp) createUser(t *testing.T, email, pwd, name string, role user.Role, schoolID string) user.Profile {
	return testutil.CreateUser(t, app.idp, app.profiles, email, pwd, name, role, schoolID)
}

func (app *testApp) createSchool(t *testing.T, id string) user.School {
	return testutil.CreateSchool(t, app.schools, id, "School "+id)
}

// login signs in through the API and returns the session token.
func (app *testApp) login(t *testing.T, email, pwd string) string {
	t.Helper()
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, LoginRequest{Email: email, Password: pwd}))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login(%s) failed: %d %s", email, rec.Code, rec.Body.String())
	}
	var res LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("login(%s) failed: %v", email, err)
	}
	return res.Token
}

type httpErr struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v (%s)", err, rec.Body.String())
	}
}
