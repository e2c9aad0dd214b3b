package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vereinshub/stundenhub/internal/dashboard"
	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/http/middlewares"
)

type Summarizer interface {
	Summarize(ctx context.Context, profileID string, year int) (dashboard.Summary, error)
}

type DashboardHandler struct {
	svc Summarizer
}

func NewDashboardHandler(svc Summarizer) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// Get serves GET /dashboard/:year. The payload is deterministic for
// unchanged data, so it ships with an ETag and honors If-None-Match.
func (h *DashboardHandler) Get(ctx *gin.Context) {
	profileID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	year, err := strconv.Atoi(ctx.Param("year"))

	if err != nil || year < 2000 || year > 2200 {
		RespondError(ctx, http.StatusBadRequest, "validation_error", "year must be a four digit number")
		return
	}

	summary, err := h.svc.Summarize(ctx.Request.Context(), profileID, year)

	if err != nil {
		switch {
		case errors.Is(err, member.ErrDirectoryUnavailable):
			// never a partial summary
			RespondUnavailable(ctx, "Member data is temporarily unavailable")
		case errors.Is(err, member.ErrProfileNotFound):
			RespondUnauthorized(ctx, "Member no longer exists")
		default:
			RespondInternal(ctx, "Could not build the dashboard")
		}
		return
	}

	payload := gin.H{
		"success":  true,
		"year":     summary.Year,
		"personal": summary.Personal,
	}

	if summary.Family != nil {
		payload["family"] = summary.Family
	}

	RespondJSONWithETag(ctx, http.StatusOK, payload)
}
