package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"recurring-donations/internal/auth"
	"recurring-donations/internal/observability/logging"
	"recurring-donations/internal/observability/metrics"
	pledgeapp "recurring-donations/internal/pledges/application"
	pledges "recurring-donations/internal/pledges/domain"
	pledgehttp "recurring-donations/internal/pledges/interfaces"
	receiptapp "recurring-donations/internal/receipts/application"
	receipthttp "recurring-donations/internal/receipts/interfaces"
	"recurring-donations/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the due sweep scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	logger := a.logger

	metrics.Init(a.db, logger)

	pledgeService, err := pledgeapp.NewPledgeService(
		a.pledges,
		a.audit,
		pledgehttp.NewLoggingDuePublisher(logger),
		pledges.SystemClock{},
		logger,
		pledgeapp.Options{
			CapByRemaining: cfg.Projection.CapByRemaining,
			MaxCount:       cfg.Projection.MaxCount,
			DueSweepLimit:  cfg.Scheduler.DueSweepLimit,
		},
	)
	if err != nil {
		return err
	}
	pledgeHandler, err := pledgehttp.NewPledgeHandler(pledgeService, pledgehttp.ScheduleDefaults{
		JSON: cfg.Projection.DefaultCount,
		PDF:  cfg.Projection.PDFCount,
		XLSX: cfg.Projection.XLSXCount,
	})
	if err != nil {
		return err
	}
	donationService, err := receiptapp.NewDonationService(a.donations, a.audit, nil, logger)
	if err != nil {
		return err
	}
	donationHandler, err := receipthttp.NewDonationHandler(donationService)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/pledges", pledgeHandler)
	mux.Handle("/api/v1/pledges/", pledgeHandler)
	mux.Handle("/api/v1/donations", donationHandler)
	mux.Handle("/api/v1/donations/", donationHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.Auth.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; API runs without authentication")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.New(pledgeService, logger, cfg.Scheduler.DueSweepCron, cfg.Scheduler.JobTimeout)
		if err != nil {
			return err
		}
		if err := jobs.Start(); err != nil {
			return err
		}
	}

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: logging.Middleware(logger, handler)}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if jobs != nil {
		jobs.Stop(shutdownCtx)
	}
	return server.Shutdown(shutdownCtx)
}
