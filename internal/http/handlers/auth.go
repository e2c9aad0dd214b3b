package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vereinshub/stundenhub/internal/authflow"
	"github.com/vereinshub/stundenhub/internal/credentials"
	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/http/middlewares"
	"github.com/vereinshub/stundenhub/internal/jobs"
	"github.com/vereinshub/stundenhub/internal/security"
	"github.com/vereinshub/stundenhub/internal/tokens"
)

// Small interfaces so tests can fake each collaborator independently.

type LoginFlow interface {
	Login(ctx context.Context, email, secret string) (authflow.LoginResult, error)
	Select(ctx context.Context, token, profileID string) (authflow.Session, error)
}

type DirectoryReader interface {
	Resolve(ctx context.Context, email string) ([]member.Profile, error)
	MemberByID(ctx context.Context, id string) (member.Profile, error)
}

type PasswordSetter interface {
	SetPassword(ctx context.Context, email, secret string) error
}

type ResetTokens interface {
	IssueReset(ctx context.Context, email, profileID string) (tokens.Reset, error)
	RedeemReset(ctx context.Context, token string) (tokens.Reset, error)
}

type JobEnqueuer interface {
	Create(ctx context.Context, req jobs.CreateRequest) (jobs.Job, error)
}

type AuthHandler struct {
	flow   LoginFlow
	dir    DirectoryReader
	pwd    PasswordSetter
	resets ResetTokens
	queue  JobEnqueuer
	log    *slog.Logger
}

func NewAuthHandler(flow LoginFlow, dir DirectoryReader, pwd PasswordSetter, resets ResetTokens, queue JobEnqueuer, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		flow:   flow,
		dir:    dir,
		pwd:    pwd,
		resets: resets,
		queue:  queue,
		log:    log,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func userPayload(p member.Profile) gin.H {
	return gin.H{
		"id":    p.ID,
		"name":  p.DisplayName(),
		"email": p.Email,
	}
}

// Login drives the whole login state machine in one request. Three possible
// outcomes: a session, a selection step, or a uniform failure.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req loginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.flow.Login(ctx.Request.Context(), req.Email, req.Password)

	if err != nil {
		h.respondAuthError(ctx, err)
		return
	}

	if res.Session != nil {
		ctx.JSON(http.StatusOK, gin.H{
			"success": true,
			"token":   res.Session.Token,
			"user":    userPayload(res.Session.Profile),
		})
		return
	}

	users := make([]gin.H, 0, len(res.Selection.Candidates))

	for _, p := range res.Selection.Candidates {
		users = append(users, userPayload(p))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":         false,
		"multiple":        true,
		"users":           users,
		"selection_token": res.Selection.Token,
		"message":         "Multiple members share this email. Pick one to continue.",
	})
}

type selectMemberRequest struct {
	MemberID       string `json:"member_id" binding:"required"`
	SelectionToken string `json:"selection_token" binding:"required"`
}

func (h *AuthHandler) SelectMember(ctx *gin.Context) {
	var req selectMemberRequest

	if !BindJSON(ctx, &req) {
		return
	}

	sess, err := h.flow.Select(ctx.Request.Context(), req.SelectionToken, req.MemberID)

	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrInvalidSelectionToken):
			RespondError(ctx, http.StatusUnauthorized, "invalid_selection_token", "Selection expired or already used. Please log in again.")
		case errors.Is(err, tokens.ErrCandidateNotInSet):
			RespondError(ctx, http.StatusForbidden, "candidate_not_in_set", "The chosen member is not part of this login.")
		default:
			h.respondAuthError(ctx, err)
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   sess.Token,
		"user":    userPayload(sess.Profile),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

const forgotPasswordMessage = "If the email is registered, a reset link has been sent."

// ForgotPassword is always success-shaped: the response must not reveal
// whether the email exists. Failures are logged, never surfaced.
func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req forgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	respond := func() {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": forgotPasswordMessage})
	}

	profiles, err := h.dir.Resolve(ctx.Request.Context(), req.Email)

	if err != nil {
		if !errors.Is(err, member.ErrNoSuchProfile) {
			h.log.ErrorContext(ctx.Request.Context(), "forgot password: directory lookup failed", "error", err)
		}

		respond()
		return
	}

	profile := profiles[0]

	reset, err := h.resets.IssueReset(ctx.Request.Context(), profile.Email, profile.ID)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "forgot password: issue reset token", "error", err)
		respond()
		return
	}

	payload, err := jobs.EncodePasswordReset(jobs.PasswordResetPayload{
		Email:     profile.Email,
		ProfileID: profile.ID,
		Token:     reset.Token,
		Name:      profile.DisplayName(),
	})

	if err == nil {
		_, err = h.queue.Create(ctx.Request.Context(), jobs.CreateRequest{
			Type:    jobs.TypeSendPasswordReset,
			Payload: payload,
		})
	}

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "forgot password: enqueue mail job", "error", err)
	}

	respond()
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	UserID   string `json:"userId"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req resetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	reset, err := h.resets.RedeemReset(ctx.Request.Context(), req.Token)

	if err != nil {
		if errors.Is(err, tokens.ErrInvalidResetToken) {
			RespondError(ctx, http.StatusUnauthorized, "invalid_reset_token", "Reset link expired or already used. Please request a new one.")
			return
		}

		RespondInternal(ctx, "Could not reset the password")
		return
	}

	// the token is authoritative; a mismatched userId means the link was
	// tampered with or reused across accounts
	if req.UserID != "" && req.UserID != reset.ProfileID {
		RespondError(ctx, http.StatusUnauthorized, "invalid_reset_token", "Reset link does not match this member.")
		return
	}

	if err := h.pwd.SetPassword(ctx.Request.Context(), reset.Email, req.Password); err != nil {
		if errors.Is(err, security.ErrWeakSecret) {
			RespondError(ctx, http.StatusBadRequest, "weak_secret", "Password must be at least 8 characters.")
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "reset password: set password", "error", err)
		RespondInternal(ctx, "Could not reset the password")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "Password updated. You can log in now."})
}

// CurrentUser serves GET /user and GET /verify-token: the session's profile,
// freshly read from the directory.
func (h *AuthHandler) CurrentUser(ctx *gin.Context) {
	profileID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	profile, err := h.dir.MemberByID(ctx.Request.Context(), profileID)

	if err != nil {
		switch {
		case errors.Is(err, member.ErrProfileNotFound):
			RespondUnauthorized(ctx, "Member no longer exists")
		case errors.Is(err, member.ErrDirectoryUnavailable):
			RespondUnavailable(ctx, "Member data is temporarily unavailable")
		default:
			RespondInternal(ctx, "Could not load the member")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    userPayload(profile),
	})
}

func (h *AuthHandler) respondAuthError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, credentials.ErrInvalidCredential):
		RespondError(ctx, http.StatusUnauthorized, "invalid_credential", "Invalid email or password")
	case errors.Is(err, member.ErrDirectoryUnavailable):
		RespondUnavailable(ctx, "Member data is temporarily unavailable")
	default:
		h.log.ErrorContext(ctx.Request.Context(), "auth failure", "error", err)
		RespondInternal(ctx, "Login failed")
	}
}
