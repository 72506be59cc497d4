package http

import (
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const specPath = "/docs/openapi.yaml"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.}}</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="docs"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: "` + specPath + `", dom_id: "#docs", docExpansion: "list"});</script>
</body>
</html>`))

// SwaggerHandler serves the store API reference from an embedded document
type SwaggerHandler struct {
	title string
	spec  []byte
	etag  string
}

// NewSwaggerHandler creates a docs handler for spec
func NewSwaggerHandler(title string, spec []byte) *SwaggerHandler {
	sum := sha256.Sum256(spec)
	return &SwaggerHandler{
		title: title,
		spec:  spec,
		etag:  `"` + hex.EncodeToString(sum[:8]) + `"`,
	}
}

// RegisterRoutes registers the docs routes
func (h *SwaggerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/docs", h.UI())
	r.Get(specPath, h.Spec())
}

// UI renders the interactive reference
func (h *SwaggerHandler) UI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := docsPage.Execute(w, h.title); err != nil {
			http.Error(w, "failed to render docs", http.StatusInternalServerError)
		}
	}
}

// Spec serves the OpenAPI document; it only changes with a new build
func (h *SwaggerHandler) Spec() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", h.etag)
		if r.Header.Get("If-None-Match") == h.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(h.spec)
	}
}
