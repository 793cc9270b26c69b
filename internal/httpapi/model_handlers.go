package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/catalog"
)

// ModelHandler serves the upstream model listing.
type ModelHandler struct {
	catalog *catalog.Catalog
}

// NewModelHandler constructs a ModelHandler.
func NewModelHandler(c *catalog.Catalog) *ModelHandler {
	return &ModelHandler{catalog: c}
}

// List returns the models able to serve generation requests.
func (h *ModelHandler) List(c *gin.Context) {
	rows := h.catalog.Models(c.Request.Context())

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	c.JSON(http.StatusOK, gin.H{"models": names})
}
