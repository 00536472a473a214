package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/auth"
	"github.com/septivank/meter-reading-service/internal/billing"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/service"
)

func (h *handler) period(c *gin.Context) (billing.Period, bool) {
	p, err := billing.ParsePeriod(c.Param("month"), c.Param("year"))
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, "Please provide a valid month and year", err))
		return billing.Period{}, false
	}
	return p, true
}

func (h *handler) listReadings(c *gin.Context) {
	q, ok := h.parseQuery(c, repository.ReadingQuery)
	if !ok {
		return
	}
	readings, err := h.Readings.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "meterReadings", readings, q.Fields)
}

func (h *handler) getReading(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	m, err := h.Readings.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "meterReading", m)
}

func (h *handler) createReading(c *gin.Context) {
	var in service.CreateReadingInput
	if !h.bind(c, &in) {
		return
	}
	m, err := h.Readings.Create(c.Request.Context(), auth.Actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "meterReading", m)
}

func (h *handler) updateReading(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in service.UpdateReadingInput
	if !h.bind(c, &in) {
		return
	}
	m, err := h.Readings.Update(c.Request.Context(), auth.Actor(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "meterReading", m)
}

func (h *handler) deleteReading(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Readings.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) verifyReading(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	m, err := h.Readings.Verify(c.Request.Context(), auth.Actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "meterReading", m)
}

func (h *handler) readingsByPeriod(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}
	readings, err := h.Readings.ByPeriod(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "meterReadings", readings, nil)
}

func (h *handler) readingsByReader(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	readings, err := h.Readings.ByReader(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "meterReadings", readings, nil)
}

func (h *handler) readingStats(c *gin.Context) {
	stats, err := h.Reports.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "stats", stats)
}
