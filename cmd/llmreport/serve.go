package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/digital-iq/llm-report/internal/inbox"
	"github.com/digital-iq/llm-report/internal/server"
)

var (
	serveAddr         string
	serveInboxDir     string
	serveSecureCookie bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report API over HTTP",
	Long: `Start the HTTP server.

Routes:
  POST /generate      run a report request (field "request_text")
  GET  /files/{name}  download a generated document
  GET  /history       the caller's run history
  POST /clear         clear the caller's run history
  GET  /health        liveness
  GET  /readyz        readiness of the history and artifact stores

If inbox.dir is configured (or --inbox is given), request files dropped into
that directory are run as well.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveInboxDir, "inbox", "", "Watch this directory for request files (overrides inbox.dir)")
	serveCmd.Flags().BoolVar(&serveSecureCookie, "secure-cookie", false, "Mark the session cookie Secure")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveInboxDir != "" {
		cfg.Inbox.Dir = serveInboxDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, pipelineOptions{})
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(server.Options{
		Runner:       p.executor,
		History:      p.history,
		Artifacts:    p.artifacts,
		CookieName:   cfg.Server.CookieName,
		SecureCookie: serveSecureCookie,
		Logger:       logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, logger, server.Config{
			Addr:            cfg.Server.Addr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, srv.Handler())
	})

	if cfg.Inbox.Dir != "" {
		w, err := inbox.New(inbox.Config{Dir: cfg.Inbox.Dir, Identity: cfg.Inbox.Identity}, p.executor, logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	logger.Info("llmreport started",
		zap.String("version", Version()),
		zap.String("addr", cfg.Server.Addr),
		zap.String("backend", cfg.Backend.Provider),
		zap.String("history", cfg.History.Driver),
		zap.String("artifacts", cfg.Artifacts.Backend))

	err = g.Wait()
	logger.Info("waiting for in-flight runs")
	srv.Wait()
	if err != nil {
		return err
	}
	logger.Info("llmreport stopped")
	return nil
}
