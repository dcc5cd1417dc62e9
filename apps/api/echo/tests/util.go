package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	echoapi "github.com/aurraa/classroom/apps/api/echo"
	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
	"github.com/aurraa/classroom/core/identity"
	"github.com/aurraa/classroom/core/profile"
	"github.com/aurraa/classroom/core/session"
	emailsvc "github.com/aurraa/classroom/services/email"
	"github.com/aurraa/classroom/services/identity/directory"
	inmemdb "github.com/aurraa/classroom/storage/database/inmem"
	testutil "github.com/aurraa/classroom/tests"
)

var conf = &core.Config{
	AppName:                   "Aurraa",
	SecretKey:                 "secret",
	TestMode:                  true,
	PasswordResetTimeoutDelta: 72 * time.Hour,
	Server: core.ServerConfig{
		DisableReqLogs:     true,
		JWTExpirationDelta: time.Hour,
	},
	Mail: core.MailConfig{DefaultFromEmail: "noreply@aurraa.test", FrontendBaseURL: "http://aurraa.test"},
	Pages: core.PagesConfig{
		StudentLogin:   "login.html",
		StudentSignup:  "signup.html",
		StudentLanding: "ncret-grade.html",
		TeacherLogin:   "teacher-login.html",
		TeacherSignup:  "teacher-signup.html",
		TeacherLanding: "teacher-dashboard-responsive.html",
	},
}

type testApp struct {
	*echoapi.Server
	reconciler *session.Reconciler
	profiles   *profile.Store
	logger     *testutil.Logger
}

func newApp(t *testing.T, adapter identity.Adapter, dir *directory.Adapter) testApp {
	t.Helper()
	logger := &testutil.Logger{}
	profiles, _ := testutil.NewProfileStore()
	validate, translator := core.NewValidator()
	reconciler := session.NewReconciler(profiles, adapter, logger, validate, translator)

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Reconciler: reconciler,
		Gate:       session.NewGate(profiles, conf.Pages),
		Directory:  dir,
		Validate:   validate,
		Translator: translator,
	})
	t.Cleanup(func() { _ = srv.Close() })
	return testApp{Server: srv, reconciler: reconciler, profiles: profiles, logger: logger}
}

// newLocalApp serves the API with no identity service.
func newLocalApp(t *testing.T) testApp {
	return newApp(t, nil, nil)
}

// newRemoteApp serves the API over an in-process identity adapter.
func newRemoteApp(t *testing.T, users ...testutil.AdapterUser) (testApp, *testutil.Adapter) {
	adapter := testutil.NewAdapter(users...)
	return newApp(t, adapter, nil), adapter
}

// newSubscribedApp is newRemoteApp with both portals subscribed to auth changes, as the api command runs.
func newSubscribedApp(t *testing.T, users ...testutil.AdapterUser) (testApp, *testutil.Adapter) {
	app, adapter := newRemoteApp(t, users...)
	for _, role := range profile.Roles {
		t.Cleanup(app.reconciler.Subscribe(role, nil))
	}
	return app, adapter
}

// newDirectoryApp serves the API over the self-hosted directory.
func newDirectoryApp(t *testing.T) (testApp, *directory.Adapter, *account.Service) {
	t.Helper()
	validate, translator := core.NewValidator()
	svc := account.NewService(
		inmemdb.NewAccountRepository(inmemdb.Open()),
		emailsvc.NewConsoleServiceMock(conf, &testutil.Logger{}),
		conf, validate, translator,
	)
	dir := directory.New(svc, conf)
	return newApp(t, dir, dir), dir, svc
}

type httpErr struct {
	Error string `json:"error"`
}

// authErr is the body answered for an *identity.AuthError.
type authErr struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func newAuthErr(kind identity.ErrorKind) authErr {
	return authErr{Error: kind.Message(), Kind: kind.String()}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
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
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// checkFieldErrors asserts a 400 answer carrying an error for each of fields.
func checkFieldErrors(t *testing.T, rec *httptest.ResponseRecorder, fields ...string) {
	t.Helper()
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%s): %v", rec.Body.String(), err)
	}
	for _, fld := range fields {
		if got[fld] == "" {
			t.Errorf("no error for field %q in %v", fld, got)
		}
	}
	if len(got) != len(fields) {
		t.Errorf("field errors = %v; want only %v", got, fields)
	}
}

func runHTTPTests(t *testing.T, app http.Handler, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodPost
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
