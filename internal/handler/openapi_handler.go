package handler

import (
	_ "embed"
	"log/slog"
	"net/http"
)

//go:embed openapi.json
var openAPIDocument []byte

// swaggerPage はSwagger UIをCDNから読み込み、/openapi.json を表示する。
const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>authgate API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
<script>
window.onload = function () {
  window.ui = SwaggerUIBundle({ url: "/openapi.json", dom_id: "#swagger-ui" });
};
</script>
</body>
</html>
`

// OpenAPIHandler はAPIドキュメントを配信するハンドラー。
type OpenAPIHandler struct{}

// NewOpenAPIHandler はOpenAPIHandlerを生成する。
func NewOpenAPIHandler() *OpenAPIHandler {
	return &OpenAPIHandler{}
}

// Document は埋め込みのOpenAPIドキュメントを返す。
// GET /openapi.json
func (h *OpenAPIHandler) Document(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(openAPIDocument); err != nil {
		slog.Error("failed to write openapi document", slog.String("error", err.Error()))
	}
}

// Swagger はSwagger UIのページを返す。
// GET /swagger
func (h *OpenAPIHandler) Swagger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(swaggerPage)); err != nil {
		slog.Error("failed to write swagger page", slog.String("error", err.Error()))
	}
}
