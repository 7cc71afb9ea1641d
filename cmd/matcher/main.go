package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kuanb/gosm-matcher/config"
	"kuanb/gosm-matcher/geom"
	"kuanb/gosm-matcher/mapmatch"
	"kuanb/gosm-matcher/observability"
	"kuanb/gosm-matcher/osm"
	"kuanb/gosm-matcher/store"
)

func main() {
	pbfFile := flag.String("pbf", "example.osm.pbf", "PBF file name in data/ directory")
	configFile := flag.String("config", "", "JSON matcher configuration")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "", "sqlite database for persisting runs")
	inFile := flag.String("in", "", "match a GeoJSON trajectory once and exit")
	outFile := flag.String("out", "matched.geojson", "output of -in")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	tracing := flag.Bool("trace", false, "export spans to stdout")
	flag.Parse()

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(log, options{
		pbf:     fmt.Sprintf("./data/%s", *pbfFile),
		config:  *configFile,
		addr:    *addr,
		db:      *dbPath,
		in:      *inFile,
		out:     *outFile,
		tracing: *tracing,
	}); err != nil {
		log.Fatal("gosm-matcher failed", zap.Error(err))
	}
}

type options struct {
	pbf, config, addr, db, in, out string
	tracing                        bool
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid -log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func run(log *zap.Logger, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("gosm-matcher starting...")

	cfg := config.Default()
	if opts.config != "" {
		loaded, err := config.LoadConfig(opts.config)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{Enabled: opts.tracing}, log)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// Load graph at startup
	log.Info("loading graph", zap.String("file", opts.pbf))
	graph, err := osm.LoadOsmFile(opts.pbf, cfg.Highways, log)
	if err != nil {
		return err
	}
	log.Info("loaded graph", zap.Int("nodes", len(graph.Nodes)), zap.Int("ways", len(graph.Ways)))

	metrics, err := observability.NewMatchCollector(nil)
	if err != nil {
		return err
	}
	serviceOpts := []mapmatch.ServiceOption{
		mapmatch.WithMetrics(metrics),
		mapmatch.WithServiceLogger(log),
	}
	if opts.db != "" {
		db, err := store.Open(ctx, opts.db)
		if err != nil {
			return err
		}
		defer db.Close()
		serviceOpts = append(serviceOpts, mapmatch.WithStore(db))
		log.Info("persisting runs", zap.String("db", opts.db))
	}
	service := mapmatch.NewService(graph, cfg, serviceOpts...)

	if opts.in != "" {
		return matchFile(ctx, service, opts.in, opts.out, log)
	}

	server := &Server{service: service, metrics: metrics, log: log}
	return serve(ctx, server, opts.addr, log)
}

// matchFile matches one trajectory file and writes the result as GeoJSON
func matchFile(ctx context.Context, service *mapmatch.Service, in, out string, log *zap.Logger) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read trajectory: %w", err)
	}
	points, err := geom.ReadTrajectory(data)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	progress := newBarProgress(os.Stderr)
	res, err := service.Match(ctx, points, progress)
	progress.Finish()
	if err != nil {
		return err
	}

	resp := newMatchResponse(res)
	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	log.Info("wrote matched trajectory",
		zap.String("file", out),
		zap.String("run_id", res.RunID),
		zap.Int("features", len(resp.Features)),
		zap.Float64("confidence", res.Confidence),
	)
	return nil
}

func serve(ctx context.Context, server *Server, addr string, log *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start background metrics logging (every 30 seconds)
	startMetricsLogger(log, 30*time.Second, ctx.Done())

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
