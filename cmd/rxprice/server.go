package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/televita/rxprice/internal/config"
	"github.com/televita/rxprice/internal/domain/prescription"
	"github.com/televita/rxprice/internal/domain/pricing"
	"github.com/televita/rxprice/internal/platform/auth"
	"github.com/televita/rxprice/internal/platform/fhir"
	"github.com/televita/rxprice/internal/platform/middleware"
	"github.com/televita/rxprice/internal/platform/pbsapi"
	"github.com/televita/rxprice/internal/platform/resilience"
)

// batchBodyLimit caps POST /prescription/batch.
const batchBodyLimit = "64K"

// app holds the wired services shared by the server and the CLI commands.
type app struct {
	cfg           *config.Config
	logger        zerolog.Logger
	tokens        prescription.TokenSource
	pricing       *pricing.Service
	prescriptions *prescription.Service
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	fees, err := cfg.Fees()
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	signer := auth.NewAssertionSigner(cfg.PrivateKeyPath, cfg.AssertionClaims())
	tokens := auth.NewTokenExchanger(cfg.TokenExchangeConfig(), signer,
		auth.WithTokenHTTPClient(httpClient),
		auth.WithTokenRetry(cfg.TokenMaxAttempts, cfg.TokenRetryDelay),
		auth.WithTokenLogger(logger.With().Str("component", "token").Logger()),
	)

	pbs := pbsapi.NewClient(cfg.PBSBaseURL, cfg.PBSAPIKey,
		pbsapi.WithHTTPClient(httpClient),
		pbsapi.WithRetryPolicy(resilience.ExponentialPolicy(cfg.PBSMaxAttempts, cfg.PBSBackoffBase, nil)),
		pbsapi.WithLogger(logger.With().Str("component", "pbsapi").Logger()),
	)

	pricingLogger := logger.With().Str("component", "pricing").Logger()
	schedule := pricing.NewScheduleCalculator(pbs, fees,
		pricing.WithPreviousScheduleFallback(cfg.PBSFallbackPrevious),
		pricing.WithCalculatorLogger(pricingLogger),
	)
	flatFile := pricing.NewFlatFileCalculator(pricing.NewCSVPriceBook(cfg.PriceBookPath), fees)

	prescriptions := prescription.NewService(cfg.FHIRAPIBase, cfg.SubscriptionKey, tokens,
		prescription.WithHTTPClient(httpClient),
		prescription.WithLogger(logger.With().Str("component", "prescription").Logger()),
	)

	return &app{
		cfg:           cfg,
		logger:        logger,
		tokens:        tokens,
		pricing:       pricing.NewService(schedule, flatFile, pricingLogger),
		prescriptions: prescriptions,
	}, nil
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(a.logger)

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	pricing.NewHandler(a.pricing).RegisterRoutes(e.Group("/pricing"))
	prescription.NewHandler(a.prescriptions).RegisterRoutes(
		e.Group("/prescription", middleware.BodyLimit(batchBodyLimit)),
	)

	if a.cfg.IsDev() {
		e.GET("/_debug/token", debugToken(a.tokens))
	}

	return e
}

func debugToken(tokens prescription.TokenSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok, err := tokens.AccessToken(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusBadGateway, fhir.UpstreamOutcome(err.Error()))
		}
		return c.JSON(http.StatusOK, map[string]string{"token_sample": tokenSample(tok)})
	}
}

// httpErrorHandler renders errors that reach echo as OperationOutcome bodies.
// Domain handlers write their own outcomes; this covers routing errors,
// recovered panics and anything else returned raw.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		var oo *fhir.OperationOutcome

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status = he.Code
			msg := http.StatusText(status)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			switch {
			case status == http.StatusNotFound:
				oo = fhir.NotFoundOutcome(msg)
			case status == http.StatusRequestEntityTooLarge:
				oo = fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTooCostly, msg)
			case status < http.StatusInternalServerError:
				oo = fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, msg)
			default:
				oo = fhir.InternalErrorOutcome(msg)
			}
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
			oo = fhir.TimeoutOutcome()
		default:
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
			oo = fhir.InternalErrorOutcome("internal server error")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, oo)
		}
		if err != nil {
			logger.Error().Err(err).Msg("writing error response")
		}
	}
}
