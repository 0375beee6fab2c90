package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"

	"github.com/attendly/attendly-backend-go/internal/config"
	appHTTP "github.com/attendly/attendly-backend-go/internal/handler/http"
	"github.com/attendly/attendly-backend-go/internal/pkg/cache"
	"github.com/attendly/attendly-backend-go/internal/pkg/cron"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
	"github.com/attendly/attendly-backend-go/internal/pkg/jwt"
	"github.com/attendly/attendly-backend-go/internal/pkg/sse"
	"github.com/attendly/attendly-backend-go/internal/repository/postgresql"
	authService "github.com/attendly/attendly-backend-go/internal/service/auth"
	"github.com/attendly/attendly-backend-go/internal/service/checkin"
	leaveService "github.com/attendly/attendly-backend-go/internal/service/leave"
	"github.com/attendly/attendly-backend-go/internal/service/notifier"
	"github.com/attendly/attendly-backend-go/internal/service/period"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println("Invalid config:", err)
		os.Exit(1)
	}

	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "attendly"),
		slog.String("env", cfg.App.Env),
	)

	location, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Attendance.Timezone, "error", err)
		os.Exit(1)
	}

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	employeeRepo := postgresql.NewEmployeeRepository(db)
	shiftRepo := postgresql.NewShiftRepository(db)
	holidayRepo := postgresql.NewHolidayRepository(db)
	overtimeRepo := postgresql.NewOvertimeRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db)
	leaveRequestRepo := postgresql.NewLeaveRequestRepository(db)
	leaveBalanceRepo := postgresql.NewLeaveBalanceRepository(db)
	notificationRepo := postgresql.NewNotificationRepository(db)
	txRunner := postgresql.NewTxRunner(db)

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)

	hub := sse.NewHub()
	dispatcher := notifier.NewService(notificationRepo, hub, notifier.Options{
		Workers:       cfg.Notifier.Workers,
		QueueSize:     cfg.Notifier.QueueSize,
		BatchSize:     cfg.Notifier.BatchSize,
		FlushInterval: cfg.Notifier.FlushInterval,
	}, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	statusCache := cache.New(cache.NewMemoryBackend(), logger)

	resolver := period.NewResolver(period.Options{
		Grace:             time.Duration(cfg.Attendance.GraceMinutes) * time.Minute,
		EarlyCheckInSlack: cfg.Attendance.EarlyCheckInSlack,
		LateCheckOutSlack: cfg.Attendance.LateCheckOutSlack,
	})

	leaveSvc := leaveService.NewService(
		txRunner,
		leaveRequestRepo,
		leaveBalanceRepo,
		attendanceRepo,
		employeeRepo,
		shiftRepo,
		holidayRepo,
		overtimeRepo,
		dispatcher,
		statusCache,
		location,
		logger,
	)

	checkinSvc := checkin.NewService(
		txRunner,
		employeeRepo,
		shiftRepo,
		holidayRepo,
		overtimeRepo,
		attendanceRepo,
		leaveRequestRepo,
		leaveSvc,
		resolver,
		dispatcher,
		statusCache,
		location,
		time.Duration(cfg.Attendance.GraceMinutes)*time.Minute,
		logger,
	)

	gate := checkin.NewGate(checkinSvc, checkin.GateOptions{
		Workers:       cfg.Queue.Workers,
		TaskTimeout:   cfg.Queue.TaskTimeout,
		RetryMaxTries: uint(cfg.Queue.RetryMaxTries),
		RetryInterval: cfg.Queue.RetryInterval,
	}, logger)
	gate.Start()
	defer gate.Stop()

	authSvc := authService.NewService(employeeRepo, jwtService, logger)

	scheduler := cron.NewScheduler(logger)
	attendanceJobs := cron.NewAttendanceJobs(
		attendanceRepo,
		employeeRepo,
		shiftRepo,
		location,
		time.Duration(cfg.Attendance.GraceMinutes)*time.Minute,
		logger,
	)
	attendanceJobs.RegisterJobs(scheduler)
	scheduler.Start()
	defer scheduler.Stop()

	router := appHTTP.NewRouter(
		logger,
		jwtService,
		appHTTP.NewAuthHandler(authSvc),
		appHTTP.NewAttendanceHandler(gate, checkinSvc),
		appHTTP.NewLeaveHandler(leaveSvc),
		appHTTP.NewHolidayHandler(holidayRepo),
		appHTTP.NewNotificationHandler(dispatcher, jwtService, hub),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
