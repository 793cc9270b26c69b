package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/plotark/plotark/internal/auth"
	"github.com/plotark/plotark/internal/ledger"
	"github.com/plotark/plotark/internal/models"
	"github.com/plotark/plotark/internal/outline"
	log "github.com/sirupsen/logrus"
)

// OutlineHandler serves generation and outline history endpoints.
type OutlineHandler struct {
	svc *outline.Service
}

// NewOutlineHandler constructs an OutlineHandler.
func NewOutlineHandler(svc *outline.Service) *OutlineHandler {
	return &OutlineHandler{svc: svc}
}

// generateRequest defines the request body for generation.
type generateRequest struct {
	Character1 string `json:"character1"`
	Character2 string `json:"character2"`
	PlotPrompt string `json:"plot_prompt"`
	Language   string `json:"language"`
}

// Generate runs the credit-gated generation flow for the resolved principal.
func (h *OutlineHandler) Generate(c *gin.Context) {
	principal := auth.FromContext(c)
	if rejectPrincipal(c, principal) {
		return
	}

	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		return
	}

	result, errGenerate := h.svc.Generate(c.Request.Context(), principal, outline.GenerateInput{
		Character1: body.Character1,
		Character2: body.Character2,
		PlotPrompt: body.PlotPrompt,
		Language:   body.Language,
	})
	if errGenerate != nil {
		var blocked *outline.BlockedError
		switch {
		case errors.Is(errGenerate, outline.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		case errors.Is(errGenerate, outline.ErrNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"error": "not-verified"})
		case errors.Is(errGenerate, ledger.ErrInsufficientCredits):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient-credits"})
		case errors.As(errGenerate, &blocked):
			c.JSON(http.StatusBadRequest, gin.H{"error": "content-blocked", "reason": blocked.Reason})
		case errors.Is(errGenerate, outline.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid-credentials"})
		default:
			log.WithError(errGenerate).Error("generation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		}
		return
	}

	if result.Guest {
		c.JSON(http.StatusOK, gin.H{"outline": result.Outline})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outline":           result.Outline,
		"remaining_credits": result.RemainingCredits,
	})
}

// outlineResponse shapes one history entry.
type outlineResponse struct {
	ID         uint64    `json:"id"`
	Source     int       `json:"source"`
	Character1 string    `json:"character1,omitempty"`
	Character2 string    `json:"character2,omitempty"`
	PlotPrompt string    `json:"plot_prompt,omitempty"`
	Language   string    `json:"language,omitempty"`
	Characters string    `json:"characters,omitempty"`
	CoreScenes string    `json:"core_scenes,omitempty"`
	Content    string    `json:"outline"`
	CreatedAt  time.Time `json:"created_at"`
}

// List returns the principal's outline history.
func (h *OutlineHandler) List(c *gin.Context) {
	principal := auth.FromContext(c)
	if rejectPrincipal(c, principal) {
		return
	}

	rows, errList := h.svc.List(c.Request.Context(), principal)
	if errList != nil {
		if errors.Is(errList, outline.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid-credentials"})
			return
		}
		log.WithError(errList).Error("list outlines failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	entries := make([]outlineResponse, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toOutlineResponse(row))
	}
	c.JSON(http.StatusOK, gin.H{"outlines": entries})
}

// saveRequest defines the request body for saving an outline.
type saveRequest struct {
	Characters string `json:"characters"`
	CoreScenes string `json:"core_scenes"`
	Outline    string `json:"outline"`
}

// Save persists a user-authored outline.
func (h *OutlineHandler) Save(c *gin.Context) {
	principal := auth.FromContext(c)
	if rejectPrincipal(c, principal) {
		return
	}

	var body saveRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		return
	}

	saved, errSave := h.svc.Save(c.Request.Context(), principal, outline.SaveInput{
		Characters: body.Characters,
		CoreScenes: body.CoreScenes,
		Content:    body.Outline,
	})
	if errSave != nil {
		switch {
		case errors.Is(errSave, outline.ErrMissingInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		case errors.Is(errSave, outline.ErrGuestForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
		case errors.Is(errSave, outline.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid-credentials"})
		default:
			log.WithError(errSave).Error("save outline failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		}
		return
	}
	c.JSON(http.StatusCreated, toOutlineResponse(saved))
}

// Delete removes one of the principal's outlines.
func (h *OutlineHandler) Delete(c *gin.Context) {
	principal := auth.FromContext(c)
	if rejectPrincipal(c, principal) {
		return
	}

	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing-input"})
		return
	}

	if errDelete := h.svc.Delete(c.Request.Context(), principal, id); errDelete != nil {
		switch {
		case errors.Is(errDelete, outline.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not-found"})
		case errors.Is(errDelete, outline.ErrGuestForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
		case errors.Is(errDelete, outline.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid-credentials"})
		default:
			log.WithError(errDelete).Error("delete outline failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func toOutlineResponse(row models.Outline) outlineResponse {
	return outlineResponse{
		ID:         row.ID,
		Source:     int(row.Source),
		Character1: row.Character1,
		Character2: row.Character2,
		PlotPrompt: row.PlotPrompt,
		Language:   row.Language,
		Characters: row.Characters,
		CoreScenes: row.CoreScenes,
		Content:    row.Content,
		CreatedAt:  row.CreatedAt,
	}
}

// rejectPrincipal short-circuits rejected principals with their reason code.
func rejectPrincipal(c *gin.Context, principal auth.Principal) bool {
	rejected, ok := principal.(auth.Rejected)
	if !ok {
		return false
	}
	code := "invalid-credentials"
	switch rejected.Reason {
	case auth.ReasonExpired:
		code = "token-expired"
	case auth.ReasonInvalid:
		code = "token-invalid"
	case auth.ReasonUserNotFound:
		code = "user-not-found"
	case auth.ReasonMissing:
		code = "missing-credentials"
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": code})
	return true
}
