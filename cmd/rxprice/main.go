package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/televita/rxprice/internal/config"
	"github.com/televita/rxprice/internal/domain/pricing"
	"github.com/televita/rxprice/internal/platform/pbsapi"
)

const version = "0.1.0"

func main() {
	// Amounts go out as JSON numbers, e.g. "general": 31.6.
	decimal.MarshalJSONWithoutQuotes = true

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rxprice",
		Short:        "PBS medicine pricing and eRx prescription lookup",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(quoteCmd())
	root.AddCommand(tokenCmd())
	return root
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the pricing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	e := a.router()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a medicine from the command line",
	}

	var (
		qty    int
		auth   bool
		conc   bool
		sched  string
		s8     bool
		period string
	)

	pbsCmd := &cobra.Command{
		Use:   "pbs CODE",
		Short: "Quote a PBS item from the schedule API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pbsapi.ParsePeriod(period)
			if err != nil {
				return err
			}
			a, err := appFromEnv()
			if err != nil {
				return err
			}
			q, err := a.pricing.PriceFromSchedule(cmd.Context(), pricing.ScheduleRequest{
				PBSCode:       args[0],
				ScheduleCode:  sched,
				Period:        p,
				Quantity:      qty,
				DangerousDrug: s8,
				Claim:         pricing.Claim{AuthorityMedicare: auth, ConcessionEligible: conc},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), q)
		},
	}
	pbsCmd.Flags().IntVar(&qty, "qty", 1, "number of packs")
	pbsCmd.Flags().BoolVar(&auth, "auth", false, "authority / Medicare eligible")
	pbsCmd.Flags().BoolVar(&conc, "conc", false, "concession card holder")
	pbsCmd.Flags().StringVar(&sched, "sched", "", "pin a schedule code")
	pbsCmd.Flags().BoolVar(&s8, "s8", false, "treat as a Schedule 8 dangerous drug")
	pbsCmd.Flags().StringVar(&period, "period", "current", "schedule period: current or previous")

	var (
		wsdQty  int
		wsdAuth bool
		wsdConc bool
	)
	wsdCmd := &cobra.Command{
		Use:   "wsd GTIN",
		Short: "Quote a product from the wholesaler price book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromEnv()
			if err != nil {
				return err
			}
			q, err := a.pricing.PriceFromFlatFile(cmd.Context(), pricing.FlatFileRequest{
				GTIN:     args[0],
				Quantity: wsdQty,
				Claim:    pricing.Claim{AuthorityMedicare: wsdAuth, ConcessionEligible: wsdConc},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), q)
		},
	}
	wsdCmd.Flags().IntVar(&wsdQty, "qty", 1, "number of packs")
	wsdCmd.Flags().BoolVar(&wsdAuth, "auth", false, "authority / Medicare eligible")
	wsdCmd.Flags().BoolVar(&wsdConc, "conc", false, "concession card holder")

	cmd.AddCommand(pbsCmd, wsdCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Acquire an access token and print a truncated sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromEnv()
			if err != nil {
				return err
			}
			tok, err := a.tokens.AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokenSample(tok))
			return nil
		},
	}
}

func appFromEnv() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// Stdout carries the command's JSON output.
	return newApp(cfg, newLogger(cfg, os.Stderr))
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// tokenSample keeps only the first 30 characters of a token.
func tokenSample(tok string) string {
	if len(tok) > 30 {
		tok = tok[:30]
	}
	return tok + "..."
}
