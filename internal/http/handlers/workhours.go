package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vereinshub/stundenhub/internal/domain/workhour"
	"github.com/vereinshub/stundenhub/internal/http/middlewares"
)

type WorkHourStore interface {
	Create(ctx context.Context, memberID string, date time.Time, description string, hours float64) (workhour.Entry, error)
	Update(ctx context.Context, id, memberID string, date time.Time, description string, hours float64) (workhour.Entry, error)
	GetByID(ctx context.Context, id string) (workhour.Entry, error)
	Delete(ctx context.Context, id, memberID string) error
	ListByMemberYear(ctx context.Context, memberID string, year int) ([]workhour.Entry, error)
}

type WorkHoursHandler struct {
	store WorkHourStore

	// injected clock so the January grace window is testable
	now func() time.Time
}

func NewWorkHoursHandler(store WorkHourStore) *WorkHoursHandler {
	return &WorkHoursHandler{store: store, now: time.Now}
}

func (h *WorkHoursHandler) Create(ctx *gin.Context) {
	memberID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	var req workhour.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	date, err := workhour.ParseDate(req.Date)

	if err != nil {
		RespondError(ctx, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := workhour.ValidateWrite(date, req.Hours, req.Description, h.now()); err != nil {
		RespondError(ctx, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	entry, err := h.store.Create(ctx.Request.Context(), memberID, date, req.Description, req.Hours)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"success": true, "entry": entry})
}

func (h *WorkHoursHandler) Update(ctx *gin.Context) {
	memberID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	var req workhour.UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	date, err := workhour.ParseDate(req.Date)

	if err != nil {
		RespondError(ctx, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := workhour.ValidateWrite(date, req.Hours, req.Description, h.now()); err != nil {
		RespondError(ctx, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	entry, err := h.store.Update(ctx.Request.Context(), ctx.Param("id"), memberID, date, req.Description, req.Hours)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "entry": entry})
}

func (h *WorkHoursHandler) Get(ctx *gin.Context) {
	memberID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	entry, err := h.store.GetByID(ctx.Request.Context(), ctx.Param("id"))

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	if entry.MemberID != memberID {
		RespondForbidden(ctx, "This entry belongs to another member")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "entry": entry})
}

func (h *WorkHoursHandler) Delete(ctx *gin.Context) {
	memberID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	if err := h.store.Delete(ctx.Request.Context(), ctx.Param("id"), memberID); err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// List returns the caller's ledger for one year (default: current).
func (h *WorkHoursHandler) List(ctx *gin.Context) {
	memberID, ok := middlewares.ProfileIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "No active session")
		return
	}

	year := h.now().UTC().Year()

	if raw := ctx.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)

		if err != nil || parsed < 2000 || parsed > 2200 {
			RespondError(ctx, http.StatusBadRequest, "validation_error", "year must be a four digit number")
			return
		}

		year = parsed
	}

	entries, err := h.store.ListByMemberYear(ctx.Request.Context(), memberID, year)

	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "year": year, "entries": entries})
}

func (h *WorkHoursHandler) respondStoreError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, workhour.ErrDuplicateEntryForDate):
		RespondConflict(ctx, "duplicate_entry_for_date", "An entry for this date already exists")
	case errors.Is(err, workhour.ErrValidation):
		RespondError(ctx, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, workhour.ErrNotFound):
		RespondNotFound(ctx, "Entry not found")
	case errors.Is(err, workhour.ErrForbidden):
		RespondForbidden(ctx, "This entry belongs to another member")
	default:
		RespondInternal(ctx, "Could not process the entry")
	}
}
