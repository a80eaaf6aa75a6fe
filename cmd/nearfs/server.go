package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/nearfs/gateway/pkg/handler"
	"github.com/nearfs/gateway/pkg/resolver"
	"github.com/urfave/cli/v2"
)

var serverCmd = &cli.Command{
	Name:   "server",
	Usage:  "Start the nearfs http gateway",
	Before: before,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "pprof",
			Usage: "run pprof web server on localhost:6070",
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "the port the web server listens on",
			Value:   3000,
			EnvVars: []string{"PORT"},
		},
		&cli.BoolFlag{
			Name:  "gzip",
			Usage: "compress responses for clients that accept gzip",
		},
		&cli.BoolFlag{
			Name:  "eager-sizes",
			Usage: "resolve file sizes before responding so Content-Length can be sent",
			Value: true,
		},
	},
	Action: func(cctx *cli.Context) (err error) {
		if cctx.Bool("pprof") {
			go func() {
				err := http.ListenAndServe("localhost:6070", nil)
				if err != nil {
					log.Error(err)
				}
			}()
		}
		cfg, store, err := openStore(cctx)
		if err != nil {
			return err
		}
		defer closeStore(store, &err)

		r := resolver.New(store,
			resolver.WithMaxDepth(cfg.Server.MaxDepth),
			resolver.WithMaxLinks(cfg.Server.MaxLinks),
			resolver.WithEagerSizes(cfg.Server.EagerSizes),
		)
		h := handler.NewHandler(r, store,
			handler.WithGzip(cfg.Server.Gzip),
			handler.WithHealthzMaxAge(time.Duration(cfg.Server.HealthzMaxAge)*time.Second),
		)

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		server := NewHttpServer(cfg.Server.Port, h.Wrapped())

		// Start the server
		log.Infof("Serving %s block store on port %d", cfg.Storage.Type, cfg.Server.Port)
		if err := server.Start(ctx); err != nil {
			return err
		}

		// Monitor for shutdown.
		<-ctx.Done()

		log.Info("Shutting down nearfs...")

		err = server.Stop()
		if err != nil {
			return err
		}
		log.Info("Graceful shutdown successful")

		// Sync all loggers.
		_ = log.Sync() //nolint:errcheck

		return nil
	},
}

type HttpServer struct {
	port    int
	handler http.Handler
	ctx     context.Context
	cancel  context.CancelFunc
	server  *http.Server
}

func NewHttpServer(port int, handler http.Handler) *HttpServer {
	return &HttpServer{port: port, handler: handler}
}

func (s *HttpServer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	listenAddr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	s.server = &http.Server{
		Addr:              listenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// This context will be the parent of the context associated with all
		// incoming requests
		BaseContext: func(listener net.Listener) context.Context {
			return s.ctx
		},
	}

	go func() {
		if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http.Serve(): %s", err)
		}
	}()
	return nil
}

func (s *HttpServer) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	s.cancel()
	return err
}
