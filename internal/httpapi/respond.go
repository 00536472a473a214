package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/logging"
	"github.com/septivank/meter-reading-service/internal/query"
	"go.uber.org/zap"
)

func (h *handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if apperr.Is(err, apperr.KindUnknown) {
		logging.FromGin(c, h.Logger).Warn("unclassified failure", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"status": "fail", "message": err.Error()})
}

func respond(c *gin.Context, code int, key string, value any) {
	c.JSON(code, gin.H{"status": "success", "data": gin.H{key: value}})
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

// respondList projects items onto the requested fields.
func respondList[T any](h *handler, c *gin.Context, key string, items []T, fields []string) {
	if items == nil {
		items = []T{}
	}
	projected, err := query.Project(items, fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": len(items), "data": gin.H{key: projected}})
}

func (h *handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, "Invalid request body: "+err.Error(), err))
		return false
	}
	return true
}

func (h *handler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.fail(c, apperr.Validation("Invalid "+name+": "+c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func (h *handler) parseQuery(c *gin.Context, b *query.Builder) (query.Query, bool) {
	q, err := b.Parse(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return query.Query{}, false
	}
	return q, true
}
