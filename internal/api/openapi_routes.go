package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// registerOpenAPIRoutes 提供 /openapi 与 /docs/redoc
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
}

func serveOpenAPI(c *gin.Context) {
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.File("docs/api/openapi.yaml")
}

func serveRedoc(c *gin.Context) {
	// 优先使用本地redoc资源，机台常年离线；否则回退到CDN
	scriptTag := `<script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>`
	if _, err := os.Stat("static/vendors/redoc/redoc.standalone.js"); err == nil {
		scriptTag = `<script src="/static/vendors/redoc/redoc.standalone.js"></script>`
	}

	html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Token Minter API - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
      body{margin:0;padding:0;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif}
    </style>
  </head>
  <body>
    <redoc spec-url="/openapi" expand-responses="200,202"></redoc>
    ` + scriptTag + `
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
