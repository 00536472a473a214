package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/billing"
)

func (h *handler) monthlyReport(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}
	report, err := h.Reports.Monthly(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, report)
}

func (h *handler) yearlyReport(c *gin.Context) {
	year, err := billing.ParseYear(c.Param("year"))
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.KindValidation, "Please provide a valid year", err))
		return
	}
	report, err := h.Reports.Yearly(c.Request.Context(), year)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, report)
}

func (h *handler) customerHistory(c *gin.Context) {
	id, ok := h.pathID(c, "customerId")
	if !ok {
		return
	}
	report, err := h.Reports.CustomerHistory(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, report)
}

func (h *handler) readerPerformance(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}
	report, err := h.Reports.ReaderPerformance(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, report)
}

func (h *handler) anomalies(c *gin.Context) {
	p, ok := h.period(c)
	if !ok {
		return
	}
	report, err := h.Reports.Anomalies(c.Request.Context(), p, c.Param("threshold"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondData(c, report)
}
