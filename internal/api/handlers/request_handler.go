package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/entitled/internal/models"
	"github.com/Wikid82/entitled/internal/services"
)

type RequestHandler struct {
	requests *services.AccessRequestService
}

func NewRequestHandler(requests *services.AccessRequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

type CreateAccessRequest struct {
	VaultItemID string `json:"vault_item_id" binding:"required"`
	AdminID     string `json:"admin_id" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
	AccessType  string `json:"access_type"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	kind, err := models.ParseAccessType(req.AccessType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid access type"})
		return
	}

	created, err := h.requests.Create(c.Request.Context(), u, req.AdminID, req.VaultItemID, req.Reason, kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Access request created", "request_id": created.ID})
}

func (h *RequestHandler) Mine(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.requests.ListForEmployee(c.Request.Context(), u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *RequestHandler) Pending(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.requests.ListPendingForAdmin(c.Request.Context(), u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get shows one request to its employee or its assigned admin.
func (h *RequestHandler) Get(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.requests.Get(c.Request.Context(), u, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type DecideRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	Decision  string `json:"decision" binding:"required"`
}

func (h *RequestHandler) Decide(c *gin.Context) {
	u, ok := currentUser(c)
	if !ok {
		return
	}
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	decision, err := services.ParseDecision(req.Decision)
	if err != nil {
		respondError(c, err)
		return
	}
	decided, err := h.requests.Decide(c.Request.Context(), u, req.RequestID, decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request " + string(decided.Status), "status": decided.Status})
}
