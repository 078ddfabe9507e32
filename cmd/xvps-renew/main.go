package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yeye296/Xserver-VPS-Renew/internal/browser"
	"github.com/yeye296/Xserver-VPS-Renew/internal/captcha"
	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
	"github.com/yeye296/Xserver-VPS-Renew/internal/mail"
	"github.com/yeye296/Xserver-VPS-Renew/internal/metrics"
	"github.com/yeye296/Xserver-VPS-Renew/internal/notify"
	"github.com/yeye296/Xserver-VPS-Renew/internal/renew"
	"github.com/yeye296/Xserver-VPS-Renew/internal/report"
	"github.com/yeye296/Xserver-VPS-Renew/internal/scheduler"
	"github.com/yeye296/Xserver-VPS-Renew/internal/server"
	"github.com/yeye296/Xserver-VPS-Renew/internal/store"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	root := &cobra.Command{
		Use:   "xvps-renew",
		Short: "Unattended renewal of a free XServer VPS allocation",
	}
	root.AddCommand(onceCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single renewal attempt and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			m := metrics.NewMetrics()
			run := newRunFunc(cfg, m)
			onResult := newResultFunc(cfg)

			rec := run(cmd.Context())
			onResult(cmd.Context(), rec)

			logrus.Infof("Run finished with status %s", rec.Status)
			if rec.Status != renew.StatusSuccess && rec.Status != renew.StatusUnexpired {
				os.Exit(1)
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon: scheduled renewals plus an ops HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(&cfg.Database)
			if err != nil {
				return err
			}

			m := metrics.NewMetrics()
			run := newRunFunc(cfg, m)
			onResult := newResultFunc(cfg)

			sched := scheduler.NewScheduler(cfg.Scheduler.CronSpec, run,
				func(ctx context.Context, rec *renew.RunRecord) {
					if err := st.Record(rec); err != nil {
						logrus.Errorf("Failed to record run: %v", err)
					}
					onResult(ctx, rec)
				}, m)

			if err := sched.Start(); err != nil {
				return err
			}

			router := server.NewRouter(server.NewHandlers(st, sched))
			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			go func() {
				logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logrus.Fatalf("HTTP server error: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logrus.Info("Shutting down...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := sched.Stop(); err != nil {
				logrus.Errorf("Failed to stop scheduler: %v", err)
			}
			sched.Wait()

			if err := srv.Shutdown(ctx); err != nil {
				logrus.Errorf("HTTP server shutdown error: %v", err)
			}

			logrus.Info("Stopped gracefully")
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// newRunFunc builds the per-run wiring. The browser session is launched
// fresh for every run and torn down with it.
func newRunFunc(cfg *config.Config, m *metrics.Metrics) scheduler.RunFunc {
	return func(ctx context.Context) *renew.RunRecord {
		drv, err := browser.NewDriver(ctx, &cfg.Browser, cfg.Panel.StepTimeout)
		if err != nil {
			rec := renew.NewRunRecord()
			rec.VPSID = cfg.Panel.VPSID
			rec.RunnerIP = cfg.Browser.RunnerIP
			rec.Settle(renew.StatusFailed, fmt.Sprintf("browser session could not be established: %v", err))
			return rec
		}
		defer drv.Close()

		var codes renew.CodeSource
		if cfg.Mail.MailboxConfigured() {
			filter := mail.NewFilter(cfg.Mail.FromFilter, cfg.Mail.SubjectFilter)
			codes = mail.NewPoller(mail.NewIMAPDialer(&cfg.Mail), filter, cfg.Mail.ScanLimit, m)
		} else {
			logrus.Warn("Mailbox not configured; login challenges cannot be completed automatically")
		}

		solver := captcha.NewSolver(&cfg.Captcha, m)

		flow, err := renew.NewFlow(cfg, drv, codes, solver)
		if err != nil {
			rec := renew.NewRunRecord()
			rec.VPSID = cfg.Panel.VPSID
			rec.Settle(renew.StatusFailed, err.Error())
			return rec
		}
		return flow.Run(ctx)
	}
}

// newResultFunc builds the reporting side effects shared by both modes.
func newResultFunc(cfg *config.Config) scheduler.ResultFunc {
	reporter := report.NewReporter(&cfg.Report)
	notifier := notify.NewNotifier(&cfg.Telegram)

	return func(ctx context.Context, rec *renew.RunRecord) {
		reporter.Write(rec)
		notifier.Notify(ctx, report.Summary(rec))
	}
}
