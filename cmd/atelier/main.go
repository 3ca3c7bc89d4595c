package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelier-app/atelier/internal/api"
	"github.com/atelier-app/atelier/internal/config"
	"github.com/atelier-app/atelier/internal/lock"
	"github.com/atelier-app/atelier/internal/metrics"
	"github.com/atelier-app/atelier/internal/store"
	"github.com/atelier-app/atelier/internal/sweep"
	"github.com/atelier-app/atelier/internal/vertex"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		log.Fatal(err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
	})
	st := store.NewS3Store(cfg.S3Bucket, cfg.S3Region, cfg.PublicBaseURL, s3Client)

	var locker *lock.Locker
	if cfg.RedisAddr != "" {
		redisClient := lock.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		locker = lock.NewLocker(redisClient, time.Duration(cfg.LockTTLSeconds)*time.Second)
	}

	gen, err := vertex.NewClient(ctx, vertex.Config{
		Project:    cfg.GoogleProject,
		Location:   cfg.GoogleLocation,
		APIKey:     cfg.GoogleAPIKey,
		TextModel:  cfg.TextModel,
		ImageModel: cfg.ImageModel,
	})
	if err != nil {
		log.Fatal(err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	policy := sweep.Policy{Prefix: cfg.NamespacePrefix, KeepFor: cfg.KeepFor()}
	sweeper := sweep.NewSweeper(st, m)

	scheduler := sweep.NewScheduler(sweeper, policy, cfg.SweepSchedule, locker)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer scheduler.Stop()

	handler := api.NewHandler(gen, st, sweeper, policy)
	handler.Metrics = m
	handler.AdminToken = cfg.AdminToken
	handler.AllowOrigin = cfg.AllowOrigin

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.Register(mux)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
