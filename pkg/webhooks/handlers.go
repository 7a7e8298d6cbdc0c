package webhooks

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/httputil"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// Handlers exposes subscription management over HTTP. All routes require the
// admin group; webhook targets see every matching resource change.
type Handlers struct {
	manager    *Manager
	dispatcher *Dispatcher
	logger     *logrus.Entry
}

// NewHandlers creates the admin handlers. dispatcher may be nil, disabling
// the delivery log endpoints.
func NewHandlers(manager *Manager, dispatcher *Dispatcher, logger *logrus.Entry) *Handlers {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handlers{
		manager:    manager,
		dispatcher: dispatcher,
		logger:     logger.WithField("component", "webhooks"),
	}
}

// Register mounts the webhook routes on an authenticated router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/webhooks", h.create).Methods("POST")
	r.HandleFunc("/webhooks", h.list).Methods("GET")
	r.HandleFunc("/webhooks/{id}", h.get).Methods("GET")
	r.HandleFunc("/webhooks/{id}", h.remove).Methods("DELETE")
	r.HandleFunc("/webhooks/{id}/active", h.setActive).Methods("PUT")
	r.HandleFunc("/webhooks/{id}/deliveries", h.deliveries).Methods("GET")
	r.HandleFunc("/webhooks/{id}/stats", h.stats).Methods("GET")
}

func requireAdmin(r *http.Request) error {
	actor, ok := identity.FromContext(r.Context())
	if !ok || !actor.HasGroup("admin") {
		return apierror.Forbiddenf("webhook management requires the admin group")
	}
	return nil
}

// redact strips the secret before a subscription leaves the API.
func redact(sub *Subscription) *Subscription {
	out := *sub
	out.Secret = ""
	return &out
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	var sub Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		httputil.WriteError(w, h.logger, apierror.BadRequestf("invalid JSON body: %v", err))
		return
	}
	if err := h.manager.Create(r.Context(), &sub); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"subscription": sub.ID,
		"url":          sub.URL,
	}).Info("webhook subscription created")
	httputil.WriteJSON(w, http.StatusCreated, redact(&sub))
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	subs, err := h.manager.List(r.Context())
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	out := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, redact(sub))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	sub, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, redact(sub))
}

func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	if err := h.manager.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteError(w, h.logger, apierror.BadRequestf("invalid JSON body: %v", err))
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.manager.SetActive(r.Context(), id, body.Active); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *Handlers) deliveries(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	if h.dispatcher == nil {
		httputil.WriteError(w, h.logger, apierror.NotFoundf("delivery log is not enabled"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, h.logger, apierror.BadRequestf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	id := mux.Vars(r)["id"]
	httputil.WriteJSON(w, http.StatusOK, h.dispatcher.Deliveries().BySubscription(id, limit))
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}
	if h.dispatcher == nil {
		httputil.WriteError(w, h.logger, apierror.NotFoundf("delivery log is not enabled"))
		return
	}
	id := mux.Vars(r)["id"]
	httputil.WriteJSON(w, http.StatusOK, h.dispatcher.Deliveries().StatsFor(id))
}
