package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/service"
)

func (h *handler) createFieldReading(c *gin.Context) {
	var in service.CreateFieldReadingInput
	if !h.bind(c, &in) {
		return
	}
	f, err := h.FieldReadings.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "reading", f)
}

func (h *handler) listFieldReadings(c *gin.Context) {
	q, ok := h.parseQuery(c, repository.FieldReadingQuery)
	if !ok {
		return
	}
	readings, err := h.FieldReadings.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "readings", readings, q.Fields)
}

func (h *handler) getFieldReading(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	f, err := h.FieldReadings.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "reading", f)
}

func (h *handler) setFieldReadingStatus(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in service.FieldReadingStatusInput
	if !h.bind(c, &in) {
		return
	}
	f, err := h.FieldReadings.SetStatus(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "reading", f)
}
