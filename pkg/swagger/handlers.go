package swagger

import (
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/dataroomhq/dataroom/pkg/apidef"
	"github.com/dataroomhq/dataroom/pkg/httputil"
)

// Handlers serve the generated OpenAPI document and a Swagger UI page. The
// routes are unauthenticated; the document describes the API, it does not
// expose data.
type Handlers struct {
	registry *apidef.Registry
	version  string
}

// NewHandlers creates documentation handlers for the registry.
func NewHandlers(registry *apidef.Registry, version string) *Handlers {
	if version == "" {
		version = "1.0.0"
	}
	return &Handlers{registry: registry, version: version}
}

// Register mounts the documentation routes.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/openapi.json", h.serveJSON).Methods("GET")
	router.HandleFunc("/openapi.yaml", h.serveYAML).Methods("GET")
	router.HandleFunc("/swagger-ui", h.serveUI).Methods("GET")
	router.HandleFunc("/api-docs", h.serveUI).Methods("GET")
}

func (h *Handlers) serveJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	httputil.WriteJSON(w, http.StatusOK, Generate(h.registry, h.version))
}

func (h *Handlers) serveYAML(w http.ResponseWriter, r *http.Request) {
	data, err := yaml.Marshal(Generate(h.registry, h.version))
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to render OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) serveUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(swaggerUIPage))
}

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Dataroom API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui.css" />
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; padding: 0; }
  </style>
</head>
<body>
<div id="swagger-ui"></div>

<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-bundle.js" charset="UTF-8"></script>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-standalone-preset.js" charset="UTF-8"></script>
<script>
window.onload = function() {
  window.ui = SwaggerUIBundle({
    url: "/openapi.json",
    dom_id: '#swagger-ui',
    deepLinking: true,
    presets: [
      SwaggerUIBundle.presets.apis,
      SwaggerUIStandalonePreset
    ],
    layout: "StandaloneLayout",
    requestInterceptor: function(request) {
      const token = localStorage.getItem('dataroom_api_token');
      if (token) {
        request.headers['Authorization'] = 'Bearer ' + token;
      }
      return request;
    }
  });
};
</script>
</body>
</html>`
