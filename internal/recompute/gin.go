package recompute

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 1 << 20

// Gin adapts Handle to an HTTP endpoint.
func (w *Worker) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := Request{
			Method:         c.Request.Method,
			QueryTenantIDs: c.QueryArray("tenantId"),
			Authorization:  c.GetHeader("Authorization"),
			Secret:         c.GetHeader(SecretHeader),
		}
		if c.Request.Method == http.MethodPost && c.Request.Body != nil {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
			if err != nil {
				c.String(http.StatusBadRequest, errMissingTenantIDs.Error())
				return
			}
			req.Body = body
		}

		resp := w.Handle(c.Request.Context(), req)
		c.String(resp.Status, resp.Body)
	}
}

// Mount registers the worker on GET and POST of path.
func (w *Worker) Mount(r gin.IRoutes, path string) {
	h := w.Gin()
	r.GET(path, h)
	r.POST(path, h)
}
