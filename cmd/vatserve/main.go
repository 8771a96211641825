// Command vatserve serves a directory of bake documents over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/bakestore"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
)

type config struct {
	addr      string
	dir       string
	format    string
	gzip      bool
	accessLog io.Writer
}

func main() {
	var cfg config
	flag.StringVar(&cfg.addr, "addr", "127.0.0.1:8420", "listen address")
	flag.StringVar(&cfg.dir, "dir", "bakes", "directory holding bake documents")
	flag.StringVar(&cfg.format, "format", "json", "encoding for uploaded documents (json, yaml)")
	flag.BoolVar(&cfg.gzip, "gzip", true, "compress responses")
	accessLog := flag.Bool("access-log", true, "log every request to stdout")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	if *accessLog {
		cfg.accessLog = os.Stdout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "vatserve: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config) error {
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return err
	}
	return run(ctx, srv, ln)
}

// newServer opens the store and builds the HTTP server for it.
func newServer(cfg config) (*http.Server, error) {
	docFormat, err := vat.ParseFormat(cfg.format)
	if err != nil {
		return nil, err
	}
	store, err := bakestore.NewStore(cfg.dir, bakestore.WithFormat(docFormat))
	if err != nil {
		return nil, err
	}

	opts := []bakestore.HandlerOption{bakestore.WithCompression(cfg.gzip)}
	if cfg.accessLog != nil {
		opts = append(opts, bakestore.WithAccessLog(cfg.accessLog))
	}
	common.Logger().Info("bake store opened", "dir", store.Dir(), "format", docFormat)
	return &http.Server{
		Addr:              cfg.addr,
		Handler:           bakestore.NewHandler(store, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// run serves on ln until ctx is done, then shuts the server down gracefully.
func run(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		common.Logger().Info("serving bakes", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	common.Logger().Info("server stopped")
	return nil
}
