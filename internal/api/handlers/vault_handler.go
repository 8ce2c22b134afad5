package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/services"
)

type VaultHandler struct {
	vault     *services.VaultService
	privilege *services.PrivilegeService
}

func NewVaultHandler(vault *services.VaultService, privilege *services.PrivilegeService) *VaultHandler {
	return &VaultHandler{vault: vault, privilege: privilege}
}

func (h *VaultHandler) ListItems(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.vault.ListItems(c.Request.Context(), u)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

type CreateItemRequest struct {
	Title   string                 `json:"title" binding:"required"`
	Records []models.RecordPayload `json:"records"`
}

func (h *VaultHandler) CreateItem(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.vault.CreateItem(c.Request.Context(), u, req.Title, req.Records)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *VaultHandler) DeleteItem(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.vault.DeleteItem(c.Request.Context(), u, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type VaultAccessRequest struct {
	VaultItemID string `json:"vault_item_id" binding:"required"`
	TOTPToken   string `json:"totp_token" binding:"required"`
	AccessType  string `json:"access_type"`
}

// Access opens a privilege session after the step-up check and returns the
// item's decrypted records.
func (h *VaultHandler) Access(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	var req VaultAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	kind, err := models.ParseAccessType(req.AccessType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid access type"})
		return
	}

	ctx := c.Request.Context()
	session, err := h.privilege.Grant(ctx, u, req.VaultItemID, kind, req.TOTPToken)
	if err != nil {
		respondError(c, err)
		return
	}
	item, err := h.vault.GetItem(ctx, session.VaultItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := h.vault.ReadForSession(ctx, session)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vault_item": item,
		"session":    session,
		"records":    records,
	})
}

// CheckSession reports whether the caller holds a live session on the item.
func (h *VaultHandler) CheckSession(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	session, err := h.privilege.CheckSession(c.Request.Context(), u.ID, c.Param("vault_item_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if session == nil {
		c.JSON(http.StatusOK, gin.H{"has_active_session": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"has_active_session": true,
		"session_id":         session.ID,
		"expires_at":         session.ExpiresAt,
	})
}
