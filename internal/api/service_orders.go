package api

import (
	"net/http"

	"backoffice-service/internal/osimport"

	"github.com/gin-gonic/gin"
)

const maxPDFSize = 10 << 20

type parseRequest struct {
	Text string `json:"texto"`
}

// parseServiceOrder extracts and validates pasted text without saving it
func (h *Handler) parseServiceOrder(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	preview, err := h.imports.Preview(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err, "Failed to parse service order")
		return
	}

	c.JSON(http.StatusOK, preview)
}

// parseServiceOrderPDF reads the text layer of an uploaded PDF and parses it
func (h *Handler) parseServiceOrderPDF(c *gin.Context) {
	header, err := c.FormFile("arquivo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Missing file",
			"details": err.Error(),
		})
		return
	}
	if header.Size > maxPDFSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File too large",
		})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to open file",
			"details": err.Error(),
		})
		return
	}
	defer f.Close()

	text, err := osimport.ReadPDFText(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid PDF",
			"details": err.Error(),
		})
		return
	}

	preview, err := h.imports.Preview(c.Request.Context(), text)
	if err != nil {
		respondError(c, err, "Failed to parse service order")
		return
	}

	c.JSON(http.StatusOK, preview)
}

// importServiceOrder persists pasted text as a service order
func (h *Handler) importServiceOrder(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	res, err := h.imports.Import(c.Request.Context(), actor(c), req.Text, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err, "Failed to import service order")
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) getServiceOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.imports.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Service order not found")
		return
	}

	c.JSON(http.StatusOK, order)
}
