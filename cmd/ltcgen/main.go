package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/ltcgen/internal/cache"
	"github.com/zsiec/ltcgen/internal/config"
	"github.com/zsiec/ltcgen/internal/generator"
	"github.com/zsiec/ltcgen/internal/logger"
	"github.com/zsiec/ltcgen/internal/output"
	"github.com/zsiec/ltcgen/internal/server"
	"github.com/zsiec/ltcgen/internal/stream"
	"github.com/zsiec/ltcgen/pkg/version"
)

func main() {
	fs, opts, err := parseFlags(os.Args[1:], flag.ExitOnError)
	if err != nil {
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}
	if opts.serve && opts.streamRTP {
		fmt.Fprintln(os.Stderr, "-serve and -stream are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := applyOverrides(fs, cfg, opts.overrides); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.WithField("version", version.GetInfo().Short()).Debug("Starting ltcgen")
	log.WithField("config_path", opts.configPath).Debug("Configuration loaded")

	switch {
	case opts.serve:
		runServer(cfg, log)
	case opts.streamRTP:
		runStream(cfg, log)
	default:
		runFile(cfg, log)
	}
}

func runFile(cfg *config.Config, log *logrus.Logger) {
	svc, err := generator.New(cfg, nil, logger.NewLogrusAdapter(logger.WithComponent(log, "generator")))
	if err != nil {
		log.WithError(err).Fatal("Failed to create generator")
	}

	wf, err := svc.Waveform(generator.RenderRequest{
		Start:       cfg.Timecode.Start,
		CurrentTime: cfg.Timecode.CurrentTime,
		Duration:    cfg.Timecode.Duration,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to generate LTC")
	}

	if err := output.WriteFile(cfg.Output.Path, wf, cfg.Generator.BitDepth); err != nil {
		log.WithError(err).Fatal("Failed to write WAV file")
	}

	opts := svc.Options()
	log.WithFields(logrus.Fields{
		"path":        cfg.Output.Path,
		"fps":         opts.Rate.String(),
		"drop_frame":  opts.DropFrame,
		"sample_rate": wf.SampleRate,
		"bit_depth":   cfg.Generator.BitDepth,
		"start":       wf.Start.Format(opts.DropFrame),
		"end":         wf.End.Format(opts.DropFrame),
		"frames":      wf.Frames,
		"samples":     len(wf.Samples),
	}).Info("LTC file written")
}

func runServer(cfg *config.Config, log *logrus.Logger) {
	var (
		redisClient *redis.Client
		renderCache cache.Cache
	)
	if cfg.Cache.Enabled {
		redisClient = cache.NewClient(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis unavailable, renders will not be cached until it recovers")
		} else {
			log.Info("Connected to Redis successfully")
		}
		cancel()
		renderCache = cache.NewRedisCache(redisClient, logger.NewLogrusAdapter(logger.WithComponent(log, "cache")), cfg.Cache)
	}

	svc, err := generator.New(cfg, renderCache, logger.NewLogrusAdapter(logger.WithComponent(log, "generator")))
	if err != nil {
		log.WithError(err).Fatal("Failed to create generator")
	}

	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	srv := server.New(&cfg.Server, log, svc, redisClient)

	ctx, cancel := signalContext(log)
	defer cancel()

	log.WithField("version", version.GetInfo().Short()).Info("Starting LTC server")
	if err := srv.Start(ctx); err != nil {
		log.WithError(err).Fatal("Server error")
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Error("Failed to close Redis connection")
		}
	}
}

func runStream(cfg *config.Config, log *logrus.Logger) {
	svc, err := generator.New(cfg, nil, logger.NewLogrusAdapter(logger.WithComponent(log, "generator")))
	if err != nil {
		log.WithError(err).Fatal("Failed to create generator")
	}

	src, err := svc.Stream(cfg.Timecode.Start, cfg.Timecode.CurrentTime)
	if err != nil {
		log.WithError(err).Fatal("Failed to start LTC stream")
	}

	sender, err := stream.NewSender(cfg.RTP, src, logger.NewLogrusAdapter(logger.WithComponent(log, "rtp")))
	if err != nil {
		log.WithError(err).Fatal("Failed to create RTP sender")
	}

	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	began := time.Now()
	if err := sender.Run(ctx); err != nil {
		log.WithError(err).Fatal("RTP stream failed")
	}

	stats := sender.Stats()
	log.WithFields(logrus.Fields{
		"packets":  stats.PacketsSent,
		"octets":   stats.OctetsSent,
		"frames":   src.Frames(),
		"last":     src.Last().Format(cfg.Generator.DropFrame),
		"duration": time.Since(began).Round(time.Millisecond).String(),
	}).Info("RTP stream stopped")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func startMetricsServer(cfg config.MetricsConfig, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server error")
	}
}
