// cmd/api/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"voluntaris/internal/application"
	"voluntaris/internal/category"
	"voluntaris/internal/clock"
	"voluntaris/internal/config"
	"voluntaris/internal/event"
	"voluntaris/internal/identity"
	"voluntaris/internal/metrics"
	"voluntaris/internal/middleware"
	"voluntaris/internal/review"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(".")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("failed to reach database")
	}

	if cfg.Telemetry.TracingEnabled {
		shutdown, err := setupTracing(cfg)
		if err != nil {
			logrus.WithError(err).Fatal("failed to set up tracing")
		}
		defer shutdown()
	}
	metrics.Register()

	clk := clock.System{}
	identityService := identity.NewService(db)
	tokens := identity.NewTokens(cfg.JWT.Secret, cfg.JWT.Expiration, clk)
	categoryService := category.NewService(db)
	eventService := event.NewService(db, identityService, clk)
	applicationService := application.NewService(db, identityService, clk)
	reviewService := review.NewService(db, identityService, clk)

	identityHandler := identity.NewHandler(identityService, tokens)
	categoryHandler := category.NewHandler(categoryService)
	eventHandler := event.NewHandler(eventService)
	applicationHandler := application.NewHandler(applicationService)
	reviewHandler := review.NewHandler(reviewService)

	verify := middleware.VerifyFunc(tokens.Verify)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", identityHandler.HandleLogin)

		r.Route("/users", func(r chi.Router) {
			r.Post("/volunteers", identityHandler.HandleRegisterVolunteer)
			r.Post("/ongs", identityHandler.HandleRegisterOng)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(verify))
				r.Get("/me", identityHandler.HandleMe)
				r.With(middleware.RequireRole(identity.RoleVolunteer)).
					Patch("/me/volunteer", identityHandler.HandleUpdateVolunteerProfile)
				r.With(middleware.RequireRole(identity.RoleOng)).
					Patch("/me/ong", identityHandler.HandleUpdateOngProfile)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(verify), middleware.RequireRole(identity.RoleAdmin))
			r.Get("/users", identityHandler.HandleListUsers)
			r.Get("/ongs", identityHandler.HandleListOngs)
			r.Get("/volunteers", identityHandler.HandleListVolunteers)
			r.Patch("/users/{id}/status", identityHandler.HandleUpdateUserStatus)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.HandleList)
			r.Get("/{id}", categoryHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(verify), middleware.RequireRole(identity.RoleAdmin))
				r.Post("/", categoryHandler.HandleCreate)
				r.Patch("/{id}", categoryHandler.HandleUpdate)
				r.Delete("/{id}", categoryHandler.HandleDelete)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.With(middleware.OptionalAuth(verify)).Get("/", eventHandler.HandleListOpen)
			r.Get("/{id}", eventHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(verify), middleware.RequireRole(identity.RoleOng))
				r.Post("/", eventHandler.HandleCreate)
				r.Get("/mine", eventHandler.HandleListMine)
				r.Get("/mine/active", eventHandler.HandleListMineActive)
				r.Get("/mine/past", eventHandler.HandleListMinePast)
				r.Patch("/{id}", eventHandler.HandleUpdate)
				r.Delete("/{id}", eventHandler.HandleCancel)
				r.Get("/{id}/applications", applicationHandler.HandleListByEvent)
				r.Post("/{id}/check-in-code", applicationHandler.HandleCheckInCode)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(verify), middleware.RequireRole(identity.RoleVolunteer))
				r.Post("/{id}/applications", applicationHandler.HandleApply)
				r.Post("/{id}/check-in", applicationHandler.HandleCheckIn)
			})
		})

		r.Route("/applications", func(r chi.Router) {
			r.Use(middleware.Auth(verify))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(identity.RoleVolunteer))
				r.Get("/active", applicationHandler.HandleListActive)
				r.Get("/past", applicationHandler.HandleListPast)
				r.Get("/notifications", applicationHandler.HandleNotifications)
				r.Post("/{id}/cancel", applicationHandler.HandleCancel)
			})

			r.With(middleware.RequireRole(identity.RoleOng)).
				Patch("/{id}/status", applicationHandler.HandleDecide)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/ong/{ongId}", reviewHandler.HandleListByOng)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(verify), middleware.RequireRole(identity.RoleVolunteer))
				r.Post("/", reviewHandler.HandleCreate)
				r.Get("/mine", reviewHandler.HandleMine)
				r.Get("/eligible", reviewHandler.HandleListEligible)
				r.Patch("/{id}", reviewHandler.HandleUpdate)
				r.Delete("/{id}", reviewHandler.HandleDelete)
			})
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logrus.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("forced shutdown")
	}
	logrus.Info("server stopped")
}

// setupTracing wires the OTLP/HTTP exporter and installs the tracer
// provider globally. Returns a shutdown func that flushes pending spans.
func setupTracing(cfg *config.Config) (func(), error) {
	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.Telemetry.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.Telemetry.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Warn("tracer shutdown failed")
		}
	}, nil
}
