package api

import (
	"net/http"

	"backoffice-service/internal/models"
	"backoffice-service/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type startSessionRequest struct {
	Filters models.ProductFilter `json:"filtros"`
}

type editCountRequest struct {
	Counted *int `json:"qtd_contada" binding:"required"`
}

type rejectRequest struct {
	Reason string `json:"motivo"`
}

// startSession opens (or resumes) the caller's draft
func (h *Handler) startSession(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	session, err := h.inventory.StartSession(c.Request.Context(), actor(c), req.Filters)
	if err != nil {
		respondError(c, err, "Failed to start inventory")
		return
	}

	c.JSON(http.StatusCreated, session)
}

// loadPage returns one page of the count sheet
func (h *Handler) loadPage(c *gin.Context) {
	var req service.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": err.Error(),
		})
		return
	}

	page, err := h.inventory.LoadPage(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err, "Failed to load products")
		return
	}

	c.JSON(http.StatusOK, page)
}

// editCount records a counted quantity; it is saved after the debounce delay
func (h *Handler) editCount(c *gin.Context) {
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}
	productID, ok := idParam(c, "produto_id")
	if !ok {
		return
	}

	var req editCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.inventory.EditCount(c.Request.Context(), actor(c), sessionID, productID, *req.Counted)
	if err != nil {
		respondError(c, err, "Failed to record count")
		return
	}

	c.JSON(http.StatusAccepted, item)
}

func (h *Handler) closeDraft(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.inventory.CloseDraft(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to save draft")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) submitSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	session, err := h.inventory.Submit(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err, "Failed to submit inventory")
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *Handler) listPending(c *gin.Context) {
	sessions, err := h.inventory.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list inventories")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"inventarios": sessions,
	})
}

func (h *Handler) listItems(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	items, err := h.inventory.LoadItems(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to load inventory items")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"itens": items,
	})
}

func (h *Handler) listMovements(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	movements, err := h.inventory.LoadMovements(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to load stock movements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"movimentacoes": movements,
	})
}

func (h *Handler) exportSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	data, filename, err := h.inventory.Export(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to export inventory")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) approveSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	adjustments, err := h.inventory.Approve(c.Request.Context(), actor(c), id)
	if err != nil {
		respondError(c, err, "Failed to approve inventory")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"inventario_id": id,
		"status":        models.SessionStatusApproved,
		"ajustes":       adjustments,
	})
}

func (h *Handler) rejectSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	if err := h.inventory.Reject(c.Request.Context(), actor(c), id, req.Reason); err != nil {
		respondError(c, err, "Failed to reject inventory")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"inventario_id": id,
		"status":        models.SessionStatusRejected,
	})
}

func (h *Handler) getStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	level, err := h.stock.GetStock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get stock")
		return
	}

	c.JSON(http.StatusOK, level)
}
