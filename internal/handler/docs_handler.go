package handler

import (
	"bytes"
	"html/template"
	"net/http"
	"os"
	"strings"

	"caregiver-hub/pkg/apierror"
)

const (
	docsTitle   = "Caregiver Hub Auth API"
	docsSpecURL = "/openapi.yaml"
)

var swaggerPage = template.Must(template.New("swagger").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: {{.SpecURL}},
        dom_id: '#swagger-ui',
        docExpansion: 'list',
        filter: true,
        tagsSorter: 'alpha',
        persistAuthorization: true,
        withCredentials: true,
        validatorUrl: null
      });
    </script>
  </body>
</html>`))

// DocsHandler serves the OpenAPI document and a Swagger UI page that loads it.
// The "Authorize" button keeps the bearer token across reloads and requests
// carry cookies so /auth/refresh can be tried from the page.
type DocsHandler struct {
	specPath string
	page     []byte
}

func NewDocsHandler(specPath string) *DocsHandler {
	var buf bytes.Buffer
	_ = swaggerPage.Execute(&buf, struct {
		Title   string
		SpecURL string
	}{Title: docsTitle, SpecURL: docsSpecURL})

	return &DocsHandler{specPath: strings.TrimSpace(specPath), page: buf.Bytes()}
}

func (h *DocsHandler) OpenAPI(w http.ResponseWriter, _ *http.Request) {
	if h.specPath == "" {
		writeError(w, apierror.New("DOCS_UNAVAILABLE", "API documentation is not configured", "OPENAPI_SPEC_PATH", http.StatusNotFound))
		return
	}

	content, err := os.ReadFile(h.specPath)
	if err != nil {
		writeError(w, apierror.Wrap(err, "DOCS_UNAVAILABLE", "API documentation could not be read", "", http.StatusNotFound))
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *DocsHandler) SwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; style-src 'self' https://unpkg.com; img-src 'self' data:")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.page)
}
