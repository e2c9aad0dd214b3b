package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vereinshub/stundenhub/internal/authflow"
	"github.com/vereinshub/stundenhub/internal/credentials"
	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/jobs"
	"github.com/vereinshub/stundenhub/internal/security"
	"github.com/vereinshub/stundenhub/internal/tokens"
)

type fakeFlow struct {
	loginFn  func(ctx context.Context, email, secret string) (authflow.LoginResult, error)
	selectFn func(ctx context.Context, token, profileID string) (authflow.Session, error)
}

func (f *fakeFlow) Login(ctx context.Context, email, secret string) (authflow.LoginResult, error) {
	return f.loginFn(ctx, email, secret)
}

func (f *fakeFlow) Select(ctx context.Context, token, profileID string) (authflow.Session, error) {
	return f.selectFn(ctx, token, profileID)
}

type fakeDirectory struct {
	resolveFn func(ctx context.Context, email string) ([]member.Profile, error)
	memberFn  func(ctx context.Context, id string) (member.Profile, error)
}

func (f *fakeDirectory) Resolve(ctx context.Context, email string) ([]member.Profile, error) {
	return f.resolveFn(ctx, email)
}

func (f *fakeDirectory) MemberByID(ctx context.Context, id string) (member.Profile, error) {
	return f.memberFn(ctx, id)
}

type fakePasswordSetter struct {
	setFn func(ctx context.Context, email, secret string) error
}

func (f *fakePasswordSetter) SetPassword(ctx context.Context, email, secret string) error {
	return f.setFn(ctx, email, secret)
}

type fakeResetTokens struct {
	issueFn  func(ctx context.Context, email, profileID string) (tokens.Reset, error)
	redeemFn func(ctx context.Context, token string) (tokens.Reset, error)
}

func (f *fakeResetTokens) IssueReset(ctx context.Context, email, profileID string) (tokens.Reset, error) {
	return f.issueFn(ctx, email, profileID)
}

func (f *fakeResetTokens) RedeemReset(ctx context.Context, token string) (tokens.Reset, error) {
	return f.redeemFn(ctx, token)
}

type fakeQueue struct {
	createFn func(ctx context.Context, req jobs.CreateRequest) (jobs.Job, error)
}

func (f *fakeQueue) Create(ctx context.Context, req jobs.CreateRequest) (jobs.Job, error) {
	return f.createFn(ctx, req)
}

func newAuthTestRouter(h *AuthHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/login", h.Login)
	r.POST("/select-member", h.SelectMember)
	r.POST("/forgotPassword", h.ForgotPassword)
	r.POST("/resetPassword", h.ResetPassword)

	r.GET("/user", func(c *gin.Context) {
		c.Set("session.profileID", "rec-anna")
		h.CurrentUser(c)
	})

	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	b, err := json.Marshal(body)

	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}

	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}

	return out
}

func annaProfile() member.Profile {
	return member.Profile{ID: "rec-anna", FirstName: "Anna", LastName: "Muster", Email: "familie@example.com"}
}

func maxProfile() member.Profile {
	return member.Profile{ID: "rec-max", FirstName: "Max", LastName: "Muster", Email: "familie@example.com"}
}

func TestLoginSingleProfileReturnsSession(t *testing.T) {
	flow := &fakeFlow{
		loginFn: func(ctx context.Context, email, secret string) (authflow.LoginResult, error) {
			if email != "familie@example.com" || secret != "correct horse" {
				t.Fatalf("unexpected login args %q %q", email, secret)
			}

			return authflow.LoginResult{
				Session: &authflow.Session{Token: "session-jwt", Profile: annaProfile()},
			}, nil
		},
	}

	h := NewAuthHandler(flow, nil, nil, nil, nil, nil)
	r := newAuthTestRouter(h)

	w := postJSON(t, r, "/login", gin.H{"email": "familie@example.com", "password": "correct horse"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := decodeBody(t, w)

	if body["success"] != true {
		t.Fatalf("success = %v, want true", body["success"])
	}

	if body["token"] != "session-jwt" {
		t.Fatalf("token = %v, want session-jwt", body["token"])
	}

	user := body["user"].(map[string]interface{})

	if user["name"] != "Anna Muster" {
		t.Fatalf("user.name = %v, want Anna Muster", user["name"])
	}
}

func TestLoginMultipleProfilesReturnsSelection(t *testing.T) {
	flow := &fakeFlow{
		loginFn: func(ctx context.Context, email, secret string) (authflow.LoginResult, error) {
			return authflow.LoginResult{
				Selection: &authflow.Selection{
					Token:      "sel-token",
					ExpiresAt:  time.Now().Add(5 * time.Minute),
					Candidates: []member.Profile{annaProfile(), maxProfile()},
				},
			}, nil
		},
	}

	h := NewAuthHandler(flow, nil, nil, nil, nil, nil)
	r := newAuthTestRouter(h)

	w := postJSON(t, r, "/login", gin.H{"email": "familie@example.com", "password": "correct horse"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := decodeBody(t, w)

	if body["success"] != false || body["multiple"] != true {
		t.Fatalf("selection response flags wrong: %v", body)
	}

	if body["selection_token"] != "sel-token" {
		t.Fatalf("selection_token = %v", body["selection_token"])
	}

	users := body["users"].([]interface{})

	if len(users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(users))
	}

	if _, ok := body["token"]; ok {
		t.Fatal("selection response must not carry a session token")
	}
}

func TestLoginErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad credential", credentials.ErrInvalidCredential, http.StatusUnauthorized, "invalid_credential"},
		{"directory down", member.ErrDirectoryUnavailable, http.StatusServiceUnavailable, "data_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flow := &fakeFlow{
				loginFn: func(ctx context.Context, email, secret string) (authflow.LoginResult, error) {
					return authflow.LoginResult{}, tc.err
				},
			}

			h := NewAuthHandler(flow, nil, nil, nil, nil, nil)
			r := newAuthTestRouter(h)

			w := postJSON(t, r, "/login", gin.H{"email": "a@example.com", "password": "pw"})

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}

			body := decodeBody(t, w)

			if body["code"] != tc.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tc.wantCode)
			}
		})
	}
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	h := NewAuthHandler(&fakeFlow{}, nil, nil, nil, nil, nil)
	r := newAuthTestRouter(h)

	w := postJSON(t, r, "/login", gin.H{"email": "not-an-email", "password": "pw"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSelectMemberErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired token", tokens.ErrInvalidSelectionToken, http.StatusUnauthorized, "invalid_selection_token"},
		{"outsider id", tokens.ErrCandidateNotInSet, http.StatusForbidden, "candidate_not_in_set"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flow := &fakeFlow{
				selectFn: func(ctx context.Context, token, profileID string) (authflow.Session, error) {
					return authflow.Session{}, tc.err
				},
			}

			h := NewAuthHandler(flow, nil, nil, nil, nil, nil)
			r := newAuthTestRouter(h)

			w := postJSON(t, r, "/select-member", gin.H{"member_id": "rec-x", "selection_token": "sel-token"})

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}

			body := decodeBody(t, w)

			if body["code"] != tc.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tc.wantCode)
			}
		})
	}
}

func TestSelectMemberSuccess(t *testing.T) {
	flow := &fakeFlow{
		selectFn: func(ctx context.Context, token, profileID string) (authflow.Session, error) {
			if token != "sel-token" || profileID != "rec-max" {
				t.Fatalf("unexpected select args %q %q", token, profileID)
			}

			return authflow.Session{Token: "session-jwt", Profile: maxProfile()}, nil
		},
	}

	h := NewAuthHandler(flow, nil, nil, nil, nil, nil)
	r := newAuthTestRouter(h)

	w := postJSON(t, r, "/select-member", gin.H{"member_id": "rec-max", "selection_token": "sel-token"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := decodeBody(t, w)

	if body["token"] != "session-jwt" {
		t.Fatalf("token = %v", body["token"])
	}
}

func TestForgotPasswordUnknownEmailStaysQuiet(t *testing.T) {
	queueCalled := false

	dir := &fakeDirectory{
		resolveFn: func(ctx context.Context, email string) ([]member.Profile, error) {
			return nil, member.ErrNoSuchProfile
		},
	}

	queue := &fakeQueue{
		createFn: func(ctx context.Context, req jobs.CreateRequest) (jobs.Job, error) {
			queueCalled = true
			return jobs.Job{}, nil
		},
	}

	h := NewAuthHandler(nil, dir, nil, &fakeResetTokens{}, queue, nil)
	r := newAuthTestRouter(h)

	w := postJSON(t, r, "/forgotPassword", gin.H{"email": "nobody@example.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := decodeBody(t, w)

	if body["success"] != true {
		t.Fatalf("unknown email must still answer success, got %v", body)
	}

	if queueCalled {
		t.Fatal("no job must be enqueued for an unknown email")
	}
}

func TestForgotPasswordEnqueuesResetJob(t *testing.T) {
	var enqueued jobs.CreateRequest

	dir := &fakeDirectory{
		resolveFn: func(ctx context.Context, email string) ([]member.Profile, error) {
			return []member.Profile{annaProfile()}, nil
		},
	}

	resets := &fakeResetTokens{
		issueFn: func(ctx context.Context, email, profileID string) (tokens.Reset, error) {
			return tokens.Reset{Token: "rst-abc", Email: email, ProfileID: profileID}, nil
		},
	}

	queue := &fakeQueue{
		createFn: func(ctx context.Context, req jobs.CreateRequest) (jobs.Job, error) {
			enqueued = req
			return jobs.Job{ID: "job-1"}, nil
		},
	}

	h := NewAuthHandler(nil, dir, nil, resets, queue, nil)
	r := newAuthTestRouter(h)

	w := postJSON(t, r, "/forgotPassword", gin.H{"email": "familie@example.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	if enqueued.Type != jobs.TypeSendPasswordReset {
		t.Fatalf("job type = %q", enqueued.Type)
	}

	payload, err := jobs.DecodePasswordReset(enqueued.Payload)

	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	if payload.Token != "rst-abc" || payload.ProfileID != "rec-anna" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestResetPassword(t *testing.T) {
	redeem := func(ctx context.Context, token string) (tokens.Reset, error) {
		if token != "rst-abc" {
			return tokens.Reset{}, tokens.ErrInvalidResetToken
		}

		return tokens.Reset{Token: token, Email: "familie@example.com", ProfileID: "rec-anna"}, nil
	}

	cases := []struct {
		name       string
		body       gin.H
		setErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "valid token updates",
			body:       gin.H{"token": "rst-abc", "password": "new-secret-1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "matching userId accepted",
			body:       gin.H{"token": "rst-abc", "userId": "rec-anna", "password": "new-secret-1"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "mismatched userId rejected",
			body:       gin.H{"token": "rst-abc", "userId": "rec-max", "password": "new-secret-1"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_reset_token",
		},
		{
			name:       "unknown token rejected",
			body:       gin.H{"token": "rst-bogus", "password": "new-secret-1"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_reset_token",
		},
		{
			name:       "weak password rejected",
			body:       gin.H{"token": "rst-abc", "password": "short"},
			setErr:     security.ErrWeakSecret,
			wantStatus: http.StatusBadRequest,
			wantCode:   "weak_secret",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pwd := &fakePasswordSetter{
				setFn: func(ctx context.Context, email, secret string) error {
					if email != "familie@example.com" {
						t.Fatalf("password set for %q, want the token's email", email)
					}

					return tc.setErr
				},
			}

			h := NewAuthHandler(nil, nil, pwd, &fakeResetTokens{redeemFn: redeem}, nil, nil)
			r := newAuthTestRouter(h)

			w := postJSON(t, r, "/resetPassword", tc.body)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tc.wantStatus, w.Body.String())
			}

			if tc.wantCode != "" {
				body := decodeBody(t, w)

				if body["code"] != tc.wantCode {
					t.Fatalf("code = %v, want %s", body["code"], tc.wantCode)
				}
			}
		})
	}
}

func TestCurrentUserReadsDirectory(t *testing.T) {
	dir := &fakeDirectory{
		memberFn: func(ctx context.Context, id string) (member.Profile, error) {
			if id != "rec-anna" {
				t.Fatalf("lookup for %q, want the session profile", id)
			}

			return annaProfile(), nil
		},
	}

	h := NewAuthHandler(nil, dir, nil, nil, nil, nil)
	r := newAuthTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	if !strings.Contains(w.Body.String(), "Anna Muster") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestCurrentUserGoneProfileIsUnauthorized(t *testing.T) {
	dir := &fakeDirectory{
		memberFn: func(ctx context.Context, id string) (member.Profile, error) {
			return member.Profile{}, member.ErrProfileNotFound
		},
	}

	h := NewAuthHandler(nil, dir, nil, nil, nil, nil)
	r := newAuthTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
