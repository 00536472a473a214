package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/meter-reading-service/internal/auth"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/service"
)

func sendSession(c *gin.Context, code int, s *service.Session) {
	c.JSON(code, gin.H{"status": "success", "token": s.Token, "data": gin.H{"user": s.User}})
}

func (h *handler) register(c *gin.Context) {
	var in service.RegisterInput
	if !h.bind(c, &in) {
		return
	}
	s, err := h.Users.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	sendSession(c, http.StatusCreated, s)
}

func (h *handler) login(c *gin.Context) {
	var in service.LoginInput
	if !h.bind(c, &in) {
		return
	}
	s, err := h.Users.Login(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	sendSession(c, http.StatusOK, s)
}

func (h *handler) me(c *gin.Context) {
	respond(c, http.StatusOK, "user", auth.Actor(c))
}

func (h *handler) updatePassword(c *gin.Context) {
	var in service.UpdatePasswordInput
	if !h.bind(c, &in) {
		return
	}
	s, err := h.Users.UpdatePassword(c.Request.Context(), auth.Actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	sendSession(c, http.StatusOK, s)
}

func (h *handler) listUsers(c *gin.Context) {
	q, ok := h.parseQuery(c, repository.UserQuery)
	if !ok {
		return
	}
	users, err := h.Users.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondList(h, c, "users", users, q.Fields)
}

func (h *handler) getUser(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.Users.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user", user)
}

func (h *handler) updateUser(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var in service.UpdateUserInput
	if !h.bind(c, &in) {
		return
	}
	user, err := h.Users.Update(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user", user)
}

func (h *handler) deleteUser(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Users.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
