package audit

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/httputil"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// Handlers expose the audit trail over HTTP, admin-only.
type Handlers struct {
	log    *Log
	logger *logrus.Entry
}

// NewHandlers creates the audit query handlers.
func NewHandlers(log *Log, logger *logrus.Entry) *Handlers {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handlers{
		log:    log,
		logger: logger.WithField("component", "audit"),
	}
}

// Register mounts the audit routes on an authenticated router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/audit", h.query).Methods("GET")
}

func (h *Handlers) query(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.FromContext(r.Context())
	if !ok || !actor.HasGroup("admin") {
		httputil.WriteError(w, h.logger, apierror.Forbiddenf("audit queries require the admin group"))
		return
	}

	params := QueryParams{
		ResourceType: r.URL.Query().Get("resourceType"),
		ResourceID:   r.URL.Query().Get("resourceId"),
		Actor:        r.URL.Query().Get("actor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, h.logger, apierror.BadRequestf("limit must be a positive integer"))
			return
		}
		params.Limit = limit
	}

	entries, err := h.log.Query(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}
