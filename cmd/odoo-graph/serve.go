package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/odoo-graph/internal/httpapi"
	"github.com/DeusData/odoo-graph/internal/tools"
	"github.com/DeusData/odoo-graph/internal/watcher"
)

func serveFlags(fs *pflag.FlagSet) {
	fs.Bool("stdio", true, "serve MCP on stdin/stdout")
	fs.Bool("initial", true, "run the pipeline once at startup")
}

func runServe(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	stdio, _ := fs.GetBool("stdio")
	initial, _ := fs.GetBool("initial")
	if !stdio && a.cfg.HTTP.Addr == "" {
		slog.Error("serve.nothing", "reason", "stdio disabled and no http.addr")
		return exitUsage
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One run at a time across the MCP tool, the schedule and the watcher.
	var runMu sync.Mutex
	runLocked := func(ctx context.Context, reason string) {
		runMu.Lock()
		defer runMu.Unlock()
		r, err := a.runOnce(ctx, false)
		if err != nil {
			slog.Warn("serve.run", "reason", reason, "err", err)
			return
		}
		slog.Info("serve.run", "reason", reason, "status", r.Status, "mode", r.Mode)
	}

	g, ctx := errgroup.WithContext(ctx)

	if initial {
		g.Go(func() error {
			runLocked(ctx, "startup")
			return nil
		})
	}

	if a.cfg.Schedule != "" {
		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		if _, err := c.AddFunc(a.cfg.Schedule, func() { runLocked(ctx, "schedule") }); err != nil {
			return a.fail(err)
		}
		c.Start()
		slog.Info("serve.schedule", "spec", a.cfg.Schedule)
		g.Go(func() error {
			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	if a.cfg.Watch {
		w := watcher.New(a.cfg.AbsSource(), a.cfg.DiscoverOptions(), func(ctx context.Context) error {
			_, err := a.runOnce(ctx, false)
			return err
		}, &runMu)
		slog.Info("serve.watch", "root", a.cfg.AbsSource())
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}

	if addr := a.cfg.HTTP.Addr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.New(a.engine()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("serve.http", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if stdio {
		tools.Version = version
		srv := tools.NewServer(a.st, a.project(), a.toolRunner(), &runMu)
		g.Go(func() error {
			// stdin closing ends the session and the whole server.
			defer cancel()
			return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("serve.err", "err", err)
		return exitFailed
	}
	return exitOK
}
