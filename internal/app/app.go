// Package app wires the configured backends into the services shared by the
// API server, the notification worker and rollctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"rollcall/internal/admin"
	"rollcall/internal/analytics"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/face"
	"rollcall/internal/imagestore"
	"rollcall/internal/matcher"
	"rollcall/internal/metrics"
	"rollcall/internal/model"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/recognition"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/students"
	"rollcall/internal/support"
)

type App struct {
	Config config.App

	DB    *store.DB
	Redis *store.Redis
	Queue queue.Queue

	StudentRepo *store.StudentRepository
	Records     *store.AttendanceRepository
	AdminRepo   *store.AdminRepository

	Images     imagestore.Store
	Sessions   session.Store
	Tokens     *auth.Tokens
	Roles      *auth.Roles
	Metrics    *metrics.Metrics
	Recognizer *recognition.Recognizer

	Students   *students.Service
	Resets     *students.Resets
	Attendance *attendance.Service
	Admins     *admin.Service
	Analytics  *analytics.Service
	Support    *support.Service
}

// DSN returns the connection string for the configured store driver.
func DSN(cfg config.App) string {
	if cfg.StoreDriver == store.DriverPostgres {
		return cfg.DatabaseURL
	}
	return cfg.SQLitePath
}

// OpenDB connects to the configured store and applies pending migrations.
func OpenDB(ctx context.Context, cfg config.App) (*store.DB, error) {
	db, err := store.Open(ctx, cfg.StoreDriver, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// InProcessQueue reports whether queued jobs can only be consumed by the
// process that published them.
func InProcessQueue(cfg config.App) bool {
	return cfg.QueueBackend == "" || cfg.QueueBackend == "memory"
}

// Mailer returns the SMTP mailer described by cfg.
func Mailer(cfg config.App) notify.SMTPMailer {
	m := notify.SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
	}
	if m.Host == "" {
		log.Println("SMTP_HOST not set, mails will be logged and skipped")
	}
	return m
}

// NewNotifier builds the worker that turns queued events into mail.
func NewNotifier(cfg config.App, db *store.DB) *notify.Worker {
	return notify.NewWorker(store.NewStudentRepository(db), store.NewAttendanceRepository(db), Mailer(cfg), cfg.Location())
}

func needsRedis(cfg config.App) bool {
	return cfg.QueueBackend == "redis" || cfg.SessionBackend == "redis"
}

// Extractor returns the face backend selected by FACE_BACKEND.
func Extractor(ctx context.Context, cfg config.App) face.Extractor {
	if cfg.FaceBackend == "local" {
		log.Println("WARNING: FACE_BACKEND=local is a development backend")
		return face.NewLocalExtractor()
	}
	client := face.NewClient(cfg.FaceServiceURL, cfg.FaceTimeout)
	if err := client.Health(ctx); err != nil {
		log.Printf("WARNING: face service not available: %v", err)
	} else {
		log.Printf("face service connected at %s", cfg.FaceServiceURL)
	}
	return client
}

// New builds every backend and service. reg may be nil when metrics are not
// exported.
func New(ctx context.Context, cfg config.App, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{Config: cfg}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	var err error
	if a.DB, err = OpenDB(ctx, cfg); err != nil {
		return nil, err
	}
	if needsRedis(cfg) {
		if a.Redis, err = store.NewRedis(ctx, cfg.RedisAddr); err != nil {
			a.Close()
			return nil, err
		}
	}
	rdbClient := a.redisClient()
	if a.Queue, err = queue.FromConfig(cfg.QueueBackend, cfg.QueueName, cfg.AMQPURL, rdbClient); err != nil {
		a.Close()
		return nil, fmt.Errorf("queue: %w", err)
	}
	if a.Images, err = imagestore.FromConfig(ctx, cfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("image store: %w", err)
	}
	if a.Roles, err = auth.LoadRoles(); err != nil {
		a.Close()
		return nil, err
	}

	var resetTokens session.Store
	if cfg.SessionBackend == "redis" {
		a.Sessions = session.NewRedis(rdbClient, cfg.SessionTTL)
		resetTokens = session.NewRedisWithPrefix(rdbClient, students.ResetTTL, "rollcall:reset:")
	} else {
		a.Sessions = session.NewMemory(cfg.SessionTTL)
		resetTokens = session.NewMemory(students.ResetTTL)
	}
	a.Tokens = auth.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL)

	a.StudentRepo = store.NewStudentRepository(a.DB)
	a.Records = store.NewAttendanceRepository(a.DB)
	a.AdminRepo = store.NewAdminRepository(a.DB)

	a.Recognizer = recognition.New(
		Extractor(ctx, cfg),
		matcher.New(matcher.Cosine{}, cfg.MatchThreshold),
		face.ParsePolicy(cfg.MultiFacePolicy),
		map[model.Category]recognition.GallerySource{
			model.CategoryStudent: a.StudentRepo,
			model.CategoryAdmin:   a.AdminRepo,
		},
		a.Metrics,
	)

	loc := cfg.Location()
	a.Students = students.NewService(a.StudentRepo, a.Recognizer, a.Images, a.Tokens, a.Metrics)
	a.Resets = students.NewResets(a.Students, resetTokens, a.Queue)
	a.Attendance = attendance.NewService(a.StudentRepo, a.Records, a.Recognizer,
		attendance.WithLocation(loc),
		attendance.WithPublisher(a.Queue),
		attendance.WithMetrics(a.Metrics),
		attendance.WithImages(a.Images),
	)
	a.Admins = admin.NewService(a.AdminRepo, a.Sessions, a.Roles, a.Recognizer, a.Metrics, cfg.AdminUsername)
	a.Analytics = analytics.NewService(a.StudentRepo, a.Records, func() string {
		return time.Now().In(loc).Format("2006-01-02")
	})
	a.Support = support.NewService(store.NewTicketRepository(a.DB))
	return a, nil
}

// BootstrapAdmin creates the ADMIN_USERNAME super admin on an empty install.
func (a *App) BootstrapAdmin(ctx context.Context) error {
	return a.Admins.Bootstrap(ctx, a.Config.AdminUsername, a.Config.AdminPassword, a.Config.AdminEmail)
}

// Healthy reports the reachability of the database and, when used, redis.
func (a *App) Healthy(ctx context.Context) (db, rdb bool) {
	db = a.DB.Healthy(ctx)
	rdb = true
	if a.Redis != nil {
		rdb = a.Redis.Healthy(ctx)
	}
	return db, rdb
}

func (a *App) redisClient() *redis.Client {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Client
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
