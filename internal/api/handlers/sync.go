package handlers

import (
	"net/http"

	"github.com/turnover-cleaning/backend/internal/api/middleware"
	"github.com/turnover-cleaning/backend/internal/calendar"
)

type syncRequest struct {
	Manual bool `json:"manual"`
}

// TriggerSync runs one calendar sync pass over every eligible booking and
// returns its summary. Per-booking failures are reported in the summary;
// only a failure to list bookings fails the request.
func TriggerSync(syncService *calendar.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncService == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Calendar sync is not configured")
			return
		}

		var req syncRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body", err.Error())
			return
		}

		summary, err := syncService.Run(r.Context(), req.Manual)
		if err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusInternalServerError, middleware.ErrInternalError, "Calendar sync failed", map[string]bool{"success": false})
			return
		}

		writeJSON(w, http.StatusOK, summary)
	}
}
