package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gotus/internal/middleware"
	"gotus/internal/models"
	"gotus/internal/service"
)

func (h HandlerSet) ListUsers(c *gin.Context) {
	query := service.ListQuery{
		Role:   models.Role(strings.TrimSpace(c.Query("role"))),
		Search: strings.TrimSpace(c.Query("search")),
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			query.Page = v
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil && v > 0 {
			query.Limit = v
		}
	}

	result, err := h.directory.List(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}

	users := make([]listedProfile, 0, len(result.Accounts))
	for i := range result.Accounts {
		a := &result.Accounts[i]
		item := listedProfile{profileResponse: newProfile(a)}
		if creator, ok := result.Creators[a.CreatedBy]; ok {
			item.CreatedBy = &creator
		}
		users = append(users, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"pagination": paginationResponse{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages(),
		},
	})
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req service.CreateAccountInput
	if !h.bindJSON(c, &req) {
		return
	}

	account, err := h.directory.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": newProfile(account)})
}

func (h HandlerSet) GetUser(c *gin.Context) {
	account, err := h.directory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newProfile(account)})
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	var req service.UpdateAccountInput
	if !h.bindJSON(c, &req) {
		return
	}

	account, err := h.directory.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": newProfile(account)})
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	if err := h.directory.SoftDelete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deactivated"})
}

func (h HandlerSet) Census(c *gin.Context) {
	census, err := h.directory.Census(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"byRole":       census.ByRole,
		"active":       census.Active,
		"disabled":     census.Disabled,
		"activeAdmins": census.ActiveAdmins,
	})
}

func actorID(c *gin.Context) string {
	if account, ok := middleware.CurrentAccount(c); ok {
		return account.ID
	}
	return ""
}
