package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.BootstrapAdmin(ctx); err != nil {
		return err
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	var workerDone chan struct{}
	if app.InProcessQueue(cfg) {
		workerDone = make(chan struct{})
		go func() {
			defer close(workerDone)
			if err := app.NewNotifier(cfg, a.DB).Run(workerCtx, a.Queue); err != nil {
				log.Printf("notify worker: %v", err)
			}
		}()
	}

	imageDir := ""
	if cfg.ImageStore == "" || cfg.ImageStore == "disk" {
		imageDir = cfg.ImageDir
	}

	h := handler.New(handler.Config{
		Students:        a.Students,
		Resets:          a.Resets,
		Attendance:      a.Attendance,
		Admins:          a.Admins,
		Analytics:       a.Analytics,
		Support:         a.Support,
		Records:         a.Records,
		Publisher:       a.Queue,
		Roles:           a.Roles,
		Tokens:          a.Tokens,
		Sessions:        a.Sessions,
		Location:        cfg.Location(),
		MaxUploadBytes:  cfg.MaxUploadBytes,
		ReportRecipient: cfg.ReportRecipient,
		SupportEmail:    cfg.SupportEmail,
		ImageDir:        imageDir,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     splitOrigins(cfg.AllowedOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-Token"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics(a.Metrics))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy, redisHealthy := a.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy, "store": cfg.StoreDriver})
	})
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (store=%s, queue=%s, faces=%s)", cfg.HTTPPort, cfg.StoreDriver, cfg.QueueBackend, cfg.FaceBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	stopWorker()
	if workerDone != nil {
		<-workerDone
	}

	log.Println("Server exited")
	return nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
