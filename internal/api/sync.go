package api

import (
	"net/http"
	"strconv"

	"github.com/starford/relaynote/internal/syncer"
)

// TriggerSync handles POST /api/sync. The pass runs in the background;
// progress is reported through /sync/status and the event stream.
//
//	@Summary		Request a sync pass
//	@Tags			sync
//	@Produce		json
//	@Param			full	query		bool	false	"Ignore the last sync time and fetch everything"
//	@Success		202		{object}	syncer.Status
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync is not configured"))
		return
	}
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	h.sync.Trigger(syncer.PassOptions{Full: full})
	writeJSON(w, http.StatusAccepted, h.sync.Status())
}

// SyncStatus handles GET /api/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Status())
}

// ImportVault handles POST /api/vault/import.
func (h *Handler) ImportVault(w http.ResponseWriter, r *http.Request) {
	res, err := h.vault.Sync(r.Context())
	if err != nil {
		writeError(w, "vault import", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
