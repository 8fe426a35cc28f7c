package scim

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/directory"
)

const contentTypeSCIM = "application/scim+json"

// Handlers provides the HTTP handlers for the provisioning endpoint.
type Handlers struct {
	store  directory.Store
	logger *zap.Logger
}

// NewHandlers creates handlers bound to a store.
func NewHandlers(store directory.Store, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers the Users and Groups resource routes.
func (h *Handlers) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/Users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.GET("/:userId", h.GetUser)
		users.PUT("/:userId", h.UpdateUser)
		users.PATCH("/:userId", h.PatchUser)
		users.DELETE("/:userId", h.DeleteUser)
	}

	groups := router.Group("/Groups")
	{
		groups.GET("", h.ListGroups)
		groups.POST("", h.CreateGroup)
		groups.GET("/:groupId", h.GetGroup)
		groups.PUT("/:groupId", h.UpdateGroup)
		groups.PATCH("/:groupId", h.PatchGroup)
		groups.DELETE("/:groupId", h.DeleteGroup)
	}
}

func (h *Handlers) respond(c *gin.Context, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		c.Data(http.StatusInternalServerError, contentTypeSCIM, nil)
		return
	}
	c.Data(status, contentTypeSCIM, data)
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	status, detail := MapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	h.respond(c, status, NewError(detail, status))
}

func pageParams(c *gin.Context) (int, int) {
	startIndex, _ := strconv.Atoi(c.Query("startIndex"))
	count, _ := strconv.Atoi(c.Query("count"))
	return startIndex, count
}

// splitFilter parses the single supported filter form, `attribute eq value`,
// with an optionally quoted value.
func splitFilter(filter string) (string, string, bool) {
	parts := strings.SplitN(filter, "eq", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// User handlers

func (h *Handlers) ListUsers(c *gin.Context) {
	startIndex, count := pageParams(c)

	var users []directory.User
	var total int
	var err error

	if filter := c.Query("filter"); filter != "" {
		attribute, value, ok := splitFilter(filter)
		if !ok {
			h.respondError(c, directory.NewBadRequestError("User", "Invalid filter expression"))
			return
		}
		users, total, err = h.store.FilterUsers(c.Request.Context(), attribute, value, startIndex, count)
	} else {
		users, total, err = h.store.ListUsers(c.Request.Context(), startIndex, count)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	resources := make([]any, 0, len(users))
	for i := range users {
		resources = append(resources, RenderUser(&users[i], c.Request.URL.Path+"/"+users[i].ID))
	}
	h.respond(c, http.StatusOK, NewListResponse(resources, startIndex, total))
}

func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.store.GetUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, RenderUser(user, c.Request.URL.Path))
}

func (h *Handlers) CreateUser(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, directory.NewInternalError("User", err))
		return
	}

	model, perr := ParseUserPayload(body)
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	user, cerr := h.store.CreateUser(c.Request.Context(), model)
	if cerr != nil {
		h.respondError(c, cerr)
		return
	}
	h.respond(c, http.StatusCreated, RenderUser(user, c.Request.URL.Path+"/"+user.ID))
}

func (h *Handlers) UpdateUser(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, directory.NewInternalError("User", err))
		return
	}

	model, perr := ParseUserPayload(body)
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	user, uerr := h.store.UpdateUser(c.Request.Context(), c.Param("userId"), model)
	if uerr != nil {
		h.respondError(c, uerr)
		return
	}
	h.respond(c, http.StatusOK, RenderUser(user, c.Request.URL.Path))
}

func (h *Handlers) PatchUser(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, directory.NewInternalError("User", err))
		return
	}

	ops, perr := ParsePatchRequest("User", body)
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	user, uerr := h.store.PatchUser(c.Request.Context(), c.Param("userId"), ops)
	if uerr != nil {
		h.respondError(c, uerr)
		return
	}
	h.respond(c, http.StatusOK, RenderUser(user, c.Request.URL.Path))
}

func (h *Handlers) DeleteUser(c *gin.Context) {
	if err := h.store.DeleteUser(c.Request.Context(), c.Param("userId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Group handlers

func (h *Handlers) ListGroups(c *gin.Context) {
	startIndex, count := pageParams(c)

	var groups []directory.Group
	var total int
	var err error

	if filter := c.Query("filter"); filter != "" {
		attribute, value, ok := splitFilter(filter)
		if !ok {
			h.respondError(c, directory.NewBadRequestError("Group", "Invalid filter expression"))
			return
		}
		groups, total, err = h.store.FilterGroups(c.Request.Context(), attribute, value, startIndex, count)
	} else {
		groups, total, err = h.store.ListGroups(c.Request.Context(), startIndex, count)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	resources := make([]any, 0, len(groups))
	for i := range groups {
		resources = append(resources, RenderGroup(&groups[i], c.Request.URL.Path+"/"+groups[i].ID))
	}
	h.respond(c, http.StatusOK, NewListResponse(resources, startIndex, total))
}

func (h *Handlers) GetGroup(c *gin.Context) {
	group, err := h.store.GetGroup(c.Request.Context(), c.Param("groupId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, RenderGroup(group, c.Request.URL.Path))
}

func (h *Handlers) CreateGroup(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, directory.NewInternalError("Group", err))
		return
	}

	model, perr := ParseGroupPayload(body)
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	group, cerr := h.store.CreateGroup(c.Request.Context(), model)
	if cerr != nil {
		h.respondError(c, cerr)
		return
	}
	h.respond(c, http.StatusCreated, RenderGroup(group, c.Request.URL.Path+"/"+group.ID))
}

func (h *Handlers) UpdateGroup(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, directory.NewInternalError("Group", err))
		return
	}

	model, perr := ParseGroupPayload(body)
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	group, uerr := h.store.UpdateGroup(c.Request.Context(), c.Param("groupId"), model)
	if uerr != nil {
		h.respondError(c, uerr)
		return
	}
	h.respond(c, http.StatusOK, RenderGroup(group, c.Request.URL.Path))
}

func (h *Handlers) PatchGroup(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.respondError(c, directory.NewInternalError("Group", err))
		return
	}

	ops, perr := ParsePatchRequest("Group", body)
	if perr != nil {
		h.respondError(c, perr)
		return
	}

	group, uerr := h.store.PatchGroup(c.Request.Context(), c.Param("groupId"), ops)
	if uerr != nil {
		h.respondError(c, uerr)
		return
	}
	h.respond(c, http.StatusOK, RenderGroup(group, c.Request.URL.Path))
}

func (h *Handlers) DeleteGroup(c *gin.Context) {
	if err := h.store.DeleteGroup(c.Request.Context(), c.Param("groupId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
