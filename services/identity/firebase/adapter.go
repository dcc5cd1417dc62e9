// Package firebase implements identity.Adapter over the Firebase Authentication
// and Cloud Firestore REST APIs.
package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/identity"
)

const (
	usersCollection = "users"
	listPageSize    = 300
	requestTimeout  = 15 * time.Second
)

type Adapter struct {
	identity.Listeners

	apiKey       string
	authURL      string
	documentsURL string
	client       *rest.Client
	logger       core.Logger

	mu      sync.Mutex
	current *identity.User
	idToken string
}

var _ identity.Adapter = (*Adapter)(nil) // interface compliance check

// New checks the identity configuration and returns an Adapter.
// A missing api key or project id is reported as a configuration error.
func New(conf core.IdentityConfig, logger core.Logger) (*Adapter, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.FirebaseAPIKey, "identity.firebaseApiKey"),
		vala.StringNotEmpty(conf.FirebaseProjectID, "identity.firebaseProjectId"),
		vala.StringNotEmpty(conf.AuthEndpoint, "identity.authEndpoint"),
		vala.StringNotEmpty(conf.FirestoreEndpoint, "identity.firestoreEndpoint"),
	).Check()
	if err != nil {
		return nil, &identity.CodeError{Code: "CONFIGURATION_NOT_FOUND", Message: err.Error()}
	}

	return &Adapter{
		apiKey:  conf.FirebaseAPIKey,
		authURL: strings.TrimRight(conf.AuthEndpoint, "/"),
		documentsURL: fmt.Sprintf(
			"%s/projects/%s/databases/(default)/documents",
			strings.TrimRight(conf.FirestoreEndpoint, "/"), url.PathEscape(conf.FirebaseProjectID),
		),
		client: &rest.Client{HTTPClient: &http.Client{Timeout: requestTimeout}},
		logger: logger,
	}, nil
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// codeError reads the error body of a failed response.
// The auth API reports its code as the message prefix ("WEAK_PASSWORD : ..."),
// the document store as the status.
func codeError(resp *rest.Response) error {
	var body apiError
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil || (body.Error.Message == "" && body.Error.Status == "") {
		return &identity.CodeError{Code: http.StatusText(resp.StatusCode), Message: resp.Body}
	}

	msg := body.Error.Message
	code := msg
	if i := strings.Index(msg, " :"); i >= 0 {
		code = msg[:i]
	}
	if strings.ContainsAny(code, " .") && body.Error.Status != "" {
		code = body.Error.Status
	}
	return &identity.CodeError{Code: code, Message: msg}
}

func (a *Adapter) send(ctx context.Context, method rest.Method, endpoint string, query map[string]string, in, out interface{}) error {
	req := rest.Request{
		Method:      method,
		BaseURL:     endpoint,
		Headers:     map[string]string{"Content-Type": "application/json"},
		QueryParams: map[string]string{"key": a.apiKey},
	}
	for k, v := range query {
		req.QueryParams[k] = v
	}
	a.mu.Lock()
	if a.idToken != "" && !strings.HasPrefix(endpoint, a.authURL) {
		req.Headers["Authorization"] = "Bearer " + a.idToken
	}
	a.mu.Unlock()

	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "json.Marshal")
		}
		req.Body = body
	}

	resp, err := a.client.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return codeError(resp)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(resp.Body), out); err != nil {
			return errors.Wrap(err, "json.Unmarshal")
		}
	}
	return nil
}

type (
	passwordRequest struct {
		Email             string `json:"email"`
		Password          string `json:"password"`
		ReturnSecureToken bool   `json:"returnSecureToken"`
	}

	tokenResponse struct {
		LocalID string `json:"localId"`
		Email   string `json:"email"`
		IDToken string `json:"idToken"`
	}
)

func (a *Adapter) authenticate(ctx context.Context, method, email, secret string) (identity.Credential, error) {
	var resp tokenResponse
	in := passwordRequest{Email: email, Password: secret, ReturnSecureToken: true}
	if err := a.send(ctx, rest.Post, a.authURL+"/accounts:"+method, nil, in, &resp); err != nil {
		return identity.Credential{}, err
	}

	usr := identity.User{UID: resp.LocalID, Email: resp.Email}
	a.mu.Lock()
	a.current = &usr
	a.idToken = resp.IDToken
	a.mu.Unlock()

	a.Notify(&usr)
	return identity.Credential{User: usr, IDToken: resp.IDToken}, nil
}

func (a *Adapter) SignIn(ctx context.Context, email, secret string) (identity.Credential, error) {
	return a.authenticate(ctx, "signInWithPassword", email, secret)
}

// SignUp creates the identity and then writes its user record.
// The identity exists once the first step succeeds, so a failed record write is only logged.
func (a *Adapter) SignUp(ctx context.Context, email, secret string, fields identity.Record) (identity.Credential, error) {
	cred, err := a.authenticate(ctx, "signUp", email, secret)
	if err != nil {
		return identity.Credential{}, err
	}

	fields.ID = cred.User.UID
	if fields.Email == "" {
		fields.Email = cred.User.Email
	}
	if fields.CreatedAt.IsZero() {
		fields.CreatedAt = time.Now().UTC()
	}
	if err := a.writeRecord(ctx, fields); err != nil {
		a.logger.Error(fmt.Sprintf("firebase: writing user record %s: %v", fields.ID, err))
	}
	return cred, nil
}

func (a *Adapter) SignOut(context.Context) error {
	a.mu.Lock()
	signedIn := a.current != nil
	a.current = nil
	a.idToken = ""
	a.mu.Unlock()

	if signedIn {
		a.Notify(nil)
	}
	return nil
}

// CurrentUser returns the signed-in user, if any.
func (a *Adapter) CurrentUser() (identity.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return identity.User{}, false
	}
	return *a.current, true
}

func (a *Adapter) GetUserData(ctx context.Context, uid string) (identity.Record, error) {
	var doc document
	err := a.send(ctx, rest.Get, a.documentsURL+"/"+usersCollection+"/"+url.PathEscape(uid), nil, nil, &doc)
	if err != nil {
		var ce *identity.CodeError
		if errors.As(err, &ce) && ce.Code == "NOT_FOUND" {
			return identity.Record{}, identity.ErrNoRecord
		}
		return identity.Record{}, err
	}
	return doc.record(), nil
}

func (a *Adapter) GetAllUsers(ctx context.Context) ([]identity.Record, error) {
	var recs []identity.Record
	query := map[string]string{"pageSize": fmt.Sprint(listPageSize)}
	for {
		var page struct {
			Documents     []document `json:"documents"`
			NextPageToken string     `json:"nextPageToken"`
		}
		if err := a.send(ctx, rest.Get, a.documentsURL+"/"+usersCollection, query, nil, &page); err != nil {
			return nil, err
		}
		for _, doc := range page.Documents {
			recs = append(recs, doc.record())
		}
		if page.NextPageToken == "" {
			return recs, nil
		}
		query["pageToken"] = page.NextPageToken
	}
}

func (a *Adapter) SendPasswordReset(ctx context.Context, email string) error {
	in := map[string]string{"requestType": "PASSWORD_RESET", "email": email}
	return a.send(ctx, rest.Post, a.authURL+"/accounts:sendOobCode", nil, in, nil)
}

func (a *Adapter) writeRecord(ctx context.Context, rec identity.Record) error {
	endpoint := a.documentsURL + "/" + usersCollection + "/" + url.PathEscape(rec.ID)
	return a.send(ctx, rest.Patch, endpoint, nil, newDocument(rec), nil)
}
