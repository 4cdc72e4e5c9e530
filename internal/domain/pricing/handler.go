package pricing

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/televita/rxprice/internal/platform/fhir"
	"github.com/televita/rxprice/internal/platform/pbsapi"
)

// Handler serves price quotes over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the schedule and price-book quote routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/pbs/:code", h.PBSPrice)
	g.GET("/wsd/:gtin", h.WSDPrice)
}

// PBSPrice handles GET /pricing/pbs/:code?qty&auth&conc&sched&s8&period.
func (h *Handler) PBSPrice(c echo.Context) error {
	claim, qty, err := claimParams(c)
	if err != nil {
		return writeError(c, err)
	}
	s8, err := flagParam(c, "s8")
	if err != nil {
		return writeError(c, err)
	}
	period, err := pbsapi.ParsePeriod(c.QueryParam("period"))
	if err != nil {
		return writeError(c, fmt.Errorf("%w: period: %v", ErrInvalidRequest, err))
	}

	q, err := h.svc.PriceFromSchedule(c.Request().Context(), ScheduleRequest{
		PBSCode:       c.Param("code"),
		ScheduleCode:  strings.TrimSpace(c.QueryParam("sched")),
		Period:        period,
		Quantity:      qty,
		DangerousDrug: s8,
		Claim:         claim,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

// WSDPrice handles GET /pricing/wsd/:gtin?qty&auth&conc.
func (h *Handler) WSDPrice(c echo.Context) error {
	claim, qty, err := claimParams(c)
	if err != nil {
		return writeError(c, err)
	}
	q, err := h.svc.PriceFromFlatFile(c.Request().Context(), FlatFileRequest{
		GTIN:     c.Param("gtin"),
		Quantity: qty,
		Claim:    claim,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func claimParams(c echo.Context) (Claim, int, error) {
	qty := 1
	if raw := c.QueryParam("qty"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Claim{}, 0, fmt.Errorf("%w: qty must be a positive integer, got %q", ErrInvalidRequest, raw)
		}
		qty = n
	}
	auth, err := flagParam(c, "auth")
	if err != nil {
		return Claim{}, 0, err
	}
	conc, err := flagParam(c, "conc")
	if err != nil {
		return Claim{}, 0, err
	}
	return Claim{AuthorityMedicare: auth, ConcessionEligible: conc}, qty, nil
}

// flagParam parses an optional boolean query parameter. Absent means false.
func flagParam(c echo.Context, name string) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(c.QueryParam(name)))
	switch raw {
	case "", "false", "0", "no", "off", "f", "n":
		return false, nil
	case "true", "1", "yes", "on", "t", "y":
		return true, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidRequest, name, raw)
}

func writeError(c echo.Context, err error) error {
	kind := Classify(err)
	var oo *fhir.OperationOutcome
	switch kind {
	case KindInvalid:
		oo = fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error())
	case KindNotFound:
		oo = fhir.NotFoundOutcome(err.Error())
	case KindConfig, KindDataIntegrity:
		oo = fhir.InternalErrorOutcome(err.Error())
	case KindTimeout:
		oo = fhir.TimeoutOutcome()
	default:
		oo = fhir.UpstreamOutcome(err.Error())
	}
	return c.JSON(kind.HTTPStatus(), oo)
}
