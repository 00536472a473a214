package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/service"
)

func (h *handler) listCustomers(c *gin.Context) {
	q, ok := h.parseQuery(c, repository.CustomerQuery)
	if !ok {
		return
	}
	customers, err := h.Customers.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "customers", customers, q.Fields)
}

func (h *handler) getCustomer(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	customer, err := h.Customers.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "customer", customer)
}

func (h *handler) createCustomer(c *gin.Context) {
	var in service.CreateCustomerInput
	if !h.bind(c, &in) {
		return
	}
	customer, err := h.Customers.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "customer", customer)
}

func (h *handler) updateCustomer(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in service.UpdateCustomerInput
	if !h.bind(c, &in) {
		return
	}
	customer, err := h.Customers.Update(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "customer", customer)
}

func (h *handler) deleteCustomer(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Customers.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) searchCustomers(c *gin.Context) {
	customers, err := h.Customers.Search(c.Request.Context(), c.Query("query"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "customers", customers, nil)
}

func (h *handler) customersWithin(c *gin.Context) {
	customers, err := h.Customers.Within(c.Request.Context(), c.Param("distance"), c.Param("latlng"), c.Param("unit"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "customers", customers, nil)
}

func (h *handler) customerReadings(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	readings, err := h.Customers.Readings(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "meterReadings", readings, nil)
}
