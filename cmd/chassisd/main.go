// Command chassisd serves the demo catalog (people, genders and tags) over
// HTTP. Storage, token verification and the audit archive are selected with
// CHASSIS_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"resourcechassis/internal/entitymodel/demo"
	"resourcechassis/internal/entitymodel/sqlbundle"
	"resourcechassis/internal/logging"
)

const (
	defaultAddr     = ":5010"
	shutdownTimeout = 10 * time.Second
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chassisd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOr("CHASSIS_HTTP_ADDR", defaultAddr), "listen address")
	level := fs.String("log-level", os.Getenv("CHASSIS_LOG_LEVEL"), "log level (debug|info|warn|error)")
	ddl := fs.String("print-ddl", "", "print the catalog DDL for a dialect (sqlite|postgres) and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *ddl != "" {
		if err := printDDL(stdout, *ddl); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
		return 0
	}
	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	logger := logging.New(stderr, lvl)
	defer func() { _ = logger.Sync() }()

	app, err := newApp(ctx, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("listen failed", zap.String("addr", *addr), zap.Error(err))
		return 1
	}
	if err := serve(ctx, ln, app.Handler(), logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

func printDDL(w io.Writer, dialect string) error {
	d := sqlbundle.Dialect(dialect)
	if d != sqlbundle.DialectSQLite && d != sqlbundle.DialectPostgres {
		return fmt.Errorf("unknown dialect %q", dialect)
	}
	reg, err := demo.Registry()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, sqlbundle.Render(d, reg.Descriptors()...))
	return err
}

// serve runs until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
