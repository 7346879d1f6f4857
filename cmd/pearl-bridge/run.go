package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/edirooss/pearl-bridge/internal/config"
	"github.com/edirooss/pearl-bridge/internal/domain/state"
	"github.com/edirooss/pearl-bridge/internal/host"
	"github.com/edirooss/pearl-bridge/internal/http/handler"
	mw "github.com/edirooss/pearl-bridge/internal/http/middleware"
	"github.com/edirooss/pearl-bridge/internal/metrics"
	"github.com/edirooss/pearl-bridge/internal/pearl"
	"github.com/edirooss/pearl-bridge/internal/service"
	"github.com/edirooss/pearl-bridge/internal/surface"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	svc "github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(root *rootOptions) *cobra.Command {
	var serviceAction string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the device and serve the control surface",
		Long: `Runs the bridge: polls the Pearl, serves the HTTP API and event stream, and
publishes events to Redis when enabled. Can be installed as a system service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd.Flags())
			if err != nil {
				return err
			}

			svcConfig := &svc.Config{
				Name:        "pearl-bridge",
				DisplayName: "Pearl Bridge",
				Description: "Mirrors an Epiphan Pearl for control-panel hosts",
				Arguments:   []string{"run", "--config", root.path()},
			}

			log, level := buildLogger(cfg.Verbose)
			defer log.Sync()

			prg := &program{
				log:   log.Named("main"),
				root:  log,
				level: level,
				path:  root.path(),
				flags: cmd.Flags(),
				cfg:   cfg,
			}
			s, err := svc.New(prg, svcConfig)
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}

			if serviceAction != "" {
				if err := svc.Control(s, serviceAction); err != nil {
					return fmt.Errorf("%s service: %w", serviceAction, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service action '%s' completed successfully.\n", serviceAction)
				return nil
			}

			// Blocks until the service manager or an interrupt stops the program.
			return s.Run()
		},
	}

	f := cmd.Flags()
	f.Int("poll", 0, "poll frequency in seconds (1-300)")
	f.String("http-addr", "", "HTTP API listen address")
	f.Bool("dev", false, "development mode (CORS for local UIs, gin debug)")
	f.String("redis-addr", "", "Redis address for event publishing")
	f.StringVar(&serviceAction, "service", "", "service action: "+fmt.Sprint(svc.ControlAction))
	return cmd
}

// program implements svc.Interface around the bridge.
type program struct {
	log   *zap.Logger
	root  *zap.Logger
	level zap.AtomicLevel
	path  string
	flags *pflag.FlagSet
	cfg   *config.Config

	cancel context.CancelFunc
	done   chan struct{}
}

// Start must not block.
func (p *program) Start(svc.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		if err := p.run(ctx); err != nil {
			p.log.Error("bridge failed", zap.Error(err))
			p.root.Sync()
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(svc.Service) error {
	p.log.Info("stopping")
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(2 * shutdownTimeout):
		p.log.Warn("shutdown timed out")
	}
	return nil
}

func (p *program) run(ctx context.Context) error {
	cfg, log := p.cfg, p.root

	store := state.NewStore()
	m := metrics.New(store.Load)
	hub := host.NewHub(log)

	client := pearl.New(log, cfg.Pearl(), hub)
	client.SetObserver(m)

	poller := service.NewPoller(log, client, store, service.PollerOptions{
		Interval: cfg.PollInterval(),
		Observer: m,
		Status:   hub,
	})
	surf := surface.New(log, client, poller, hub)
	poller.SetNotifier(surf)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Redis.Enabled {
		rp := host.NewRedisPublisher(log, cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Channel)
		if err := rp.Ping(ctx); err != nil {
			p.log.Warn("redis unreachable; events that fail to publish are dropped", zap.Error(err))
		}
		hub.AddSink(rp)
		g.Go(func() error {
			rp.Run(ctx)
			return nil
		})
	}

	watcher := config.NewWatcher(log, p.path, p.flags, cfg, func(prev, next *config.Config) {
		p.level.SetLevel(levelFor(next.Verbose))
		client.SetVerbose(next.Verbose)
		poller.SetInterval(next.PollInterval())
		if prev.RequiresRestart(next) {
			p.log.Warn("device, metadata, http or redis settings changed; restart to apply")
		}
	})
	g.Go(func() error {
		if err := watcher.Run(ctx); err != nil {
			p.log.Warn("config hot reload disabled", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error { return poller.Run(ctx) })

	apiHandler := handler.New(log, surf, hub, watcher.Current)
	httpsrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(log, cfg, apiHandler, m),
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      0,                // /api/stream is long-lived
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}
	g.Go(func() error {
		p.log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
		if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpsrv.Shutdown(sctx); err != nil {
			p.log.Warn("server forced to shutdown", zap.Error(err))
		}
		poller.Close()
		return nil
	})

	err := g.Wait()
	p.log.Info("bridge stopped")
	return err
}

func newRouter(log *zap.Logger, cfg *config.Config, h *handler.Handler, m *metrics.Metrics) *gin.Engine {
	if !cfg.HTTP.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()
	r := gin.New()

	r.Use(gin.Recovery()) // Recovery first (outermost)
	r.Use(mw.RequestID())
	if cfg.HTTP.Dev { // local control-panel UIs
		r.Use(cors.New(cors.Config{
			AllowOrigins:  []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"X-Request-ID", "Content-Type"},
			ExposeHeaders: []string{"X-Request-ID", "X-Total-Count", "X-Snapshot-Generated-At"},
			MaxAge:        12 * time.Hour,
		}))
	} else {
		r.SetTrustedProxies([]string{"127.0.0.1"})
		r.Use(secure.New(secure.Config{
			FrameDeny:          true,
			ContentTypeNosniff: true,
			BrowserXssFilter:   true,
		}))
	}
	r.Use(mw.AccessLog(log.Named("http")))
	r.Use(mw.MaxBody(10 << 20))

	h.Register(r, mw.LimitConcurrentRequests(cfg.HTTP.MaxConcurrent))
	r.GET("/metrics", gin.WrapH(m.Handler(log)))
	return r
}
