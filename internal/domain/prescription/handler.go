package prescription

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/televita/rxprice/internal/platform/fhir"
)

// Handler serves prescription summaries over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts GET /:scid and POST /batch on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/batch", h.Batch)
	g.GET("/:scid", h.Get)
}

// Get handles GET /prescription/:scid.
func (h *Handler) Get(c echo.Context) error {
	scid := strings.TrimSpace(c.Param("scid"))
	if scid == "" {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("scid", "is required"))
	}
	sum, err := h.svc.Summarize(c.Request().Context(), scid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// Batch handles POST /prescription/batch. SCIDs that fail are left out.
func (h *Handler) Batch(c echo.Context) error {
	var scids []string
	if err := c.Bind(&scids); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("body", "expected a JSON array of SCIDs"))
	}
	sums, err := h.svc.SummarizeBatch(c.Request().Context(), scids)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sums)
}

func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, fhir.TimeoutOutcome())
	case errors.Is(err, ErrNotConfigured):
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	default:
		return c.JSON(http.StatusBadGateway, fhir.UpstreamOutcome(err.Error()))
	}
}
