package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/httputil"
	"github.com/dataroomhq/dataroom/pkg/resource"
)

// reserved list query parameters, everything else must be whitelisted by the
// resource definition
const (
	paramLimit       = "limit"
	paramFrom        = "from"
	paramCursorField = "cursorField"
)

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	resourceType := mux.Vars(r)["resourceType"]
	payload, err := httputil.DecodeDoc(r)
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	doc, err := s.engine.Create(r.Context(), resourceType, payload, s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, renderDoc(doc))
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := s.engine.Get(r.Context(), vars["resourceType"], vars["id"], s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderDoc(doc))
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	resourceType := mux.Vars(r)["resourceType"]

	params, err := listParams(r)
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	page, err := s.engine.List(r.Context(), resourceType, params, s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderPage(page))
}

// listParams splits the URL query into pagination inputs and definition
// query filters.
func listParams(r *http.Request) (resource.ListParams, error) {
	params := resource.ListParams{Query: map[string]string{}}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case paramLimit:
			limit, err := strconv.Atoi(value)
			if err != nil || limit < 1 {
				return params, apierror.BadRequestf("invalid limit %q", value)
			}
			params.Cursor.Limit = limit
		case paramFrom:
			params.Cursor.From = value
		case paramCursorField:
			params.Cursor.Field = value
		default:
			params.Query[key] = value
		}
	}
	return params, nil
}

func (s *Server) updateResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	payload, err := httputil.DecodeDoc(r)
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	doc, err := s.engine.Update(r.Context(), vars["resourceType"], vars["id"], payload, s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderDoc(doc))
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.engine.Delete(r.Context(), vars["resourceType"], vars["id"], s.actor(r)); err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) getSection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	value, err := s.engine.GetSection(r.Context(), vars["resourceType"], vars["id"], vars["section"], s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderValue(value))
}

// sectionOp maps the request method to the section operation the engine
// enforces presence invariants for.
func sectionOp(r *http.Request) string {
	if r.Method == http.MethodPost {
		return "create"
	}
	return "update"
}

func (s *Server) upsertSection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	payload, err := httputil.DecodeDoc(r)
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}

	doc, err := s.engine.UpsertSection(r.Context(),
		vars["resourceType"], vars["id"], vars["section"], sectionOp(r), payload, s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderDoc(doc))
}

func (s *Server) deleteSection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := s.engine.DeleteSection(r.Context(), vars["resourceType"], vars["id"], vars["section"], s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderDoc(doc))
}
