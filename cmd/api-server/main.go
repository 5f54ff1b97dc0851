package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/medicore/hms-api/api/swagger"
	"github.com/medicore/hms-api/internal/handler"
	"github.com/medicore/hms-api/internal/middleware"
	"github.com/medicore/hms-api/internal/models"
	"github.com/medicore/hms-api/internal/repository"
	"github.com/medicore/hms-api/internal/service"
	"github.com/medicore/hms-api/pkg/cache"
	"github.com/medicore/hms-api/pkg/clock"
	"github.com/medicore/hms-api/pkg/config"
	"github.com/medicore/hms-api/pkg/database"
	"github.com/medicore/hms-api/pkg/lock"
	"github.com/medicore/hms-api/pkg/logger"
	corsmiddleware "github.com/medicore/hms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/medicore/hms-api/pkg/middleware/requestid"
)

// @title HMS Scheduling API
// @version 1.0.0
// @description Doctor slot allocation and appointment booking service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduleRepo := repository.NewScheduleRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	doctorRepo := repository.NewDoctorRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	clk := clock.New()
	metrics := service.NewMetricsService()
	locker := lock.NewRedisLocker(redisClient, cfg.Booking.SlotLockTTL)

	scheduleSvc := service.NewScheduleService(scheduleRepo, validate, logr)
	slotSvc := service.NewSlotService(scheduleRepo, clk, logr)
	availabilitySvc := service.NewAvailabilityService(slotSvc, appointmentRepo, cacheRepo, cfg.Booking.AvailabilityCacheTTL, metrics, logr)
	bookingSvc := service.NewBookingService(appointmentRepo, patientRepo, doctorRepo, availabilitySvc, locker, clk, cfg.Booking.CancellationWindow, validate, metrics, logr)
	exportSvc := service.NewExportService(appointmentRepo, doctorRepo, logr)

	if cfg.Booking.NoShowSweeperEnabled {
		noShowSvc := service.NewNoShowService(appointmentRepo, availabilitySvc, clk, cfg.Booking.NoShowGrace, cfg.Booking.NoShowSweepInterval, metrics, logr)
		noShowSvc.Start(ctx)
		defer noShowSvc.Stop()
	}

	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc, slotSvc)
	appointmentHandler := handler.NewAppointmentHandler(bookingSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.OptionalAuthenticate(cfg.JWT.Secret))

	api.GET("/schedules", scheduleHandler.List)
	api.GET("/schedules/:id", scheduleHandler.Get)
	api.GET("/doctors/:id/schedules", scheduleHandler.ListByDoctorDay)

	admin := api.Group("")
	admin.Use(middleware.Authenticate(cfg.JWT.Secret), middleware.RequireRole(models.RoleAdmin))
	admin.POST("/schedules", scheduleHandler.Create)
	admin.PUT("/schedules/:id", scheduleHandler.Update)
	admin.DELETE("/schedules/:id", scheduleHandler.Deactivate)

	api.GET("/doctors/:id/slots", availabilityHandler.Slots)
	api.POST("/check-doctor-availability", availabilityHandler.Check)

	api.GET("/appointments", appointmentHandler.List)
	api.GET("/appointments/:id", appointmentHandler.Get)
	api.POST("/appointments", appointmentHandler.Book)
	api.PATCH("/appointments/:id", appointmentHandler.Update)
	api.POST("/appointments/:id/cancel", appointmentHandler.Cancel)

	staff := api.Group("")
	staff.Use(middleware.Authenticate(cfg.JWT.Secret), middleware.RequireRole(models.RoleDoctor, models.RoleReceptionist))
	staff.POST("/appointments/:id/check-in", appointmentHandler.CheckIn)
	staff.POST("/appointments/:id/start", appointmentHandler.StartSession)
	staff.POST("/appointments/:id/complete", appointmentHandler.Complete)
	staff.POST("/appointments/:id/no-show", appointmentHandler.MarkNoShow)

	if cfg.Exports.Enabled {
		staff.GET("/doctors/:id/day-sheet", exportHandler.DaySheet)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
