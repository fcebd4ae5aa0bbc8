package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"pagecms/constants"
)

var (
	db     *gorm.DB
	logger *zap.SugaredLogger
)

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("server.port", 3001)
	viper.SetDefault("server.cors_origins", "http://localhost:5173")
	viper.SetDefault("database.path", "pagecms.db")
	viper.SetDefault("seed.enabled", true)
	viper.SetDefault("login.max_attempts_per_minute", constants.LOGIN_MAX_ATTEMPTS)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("failed to read config: %v", err)
		}
	}
}

func initLogger() {
	base, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	logger = base.Sugar()
}

func initDatabase(path string) {
	var err error
	db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		logger.Fatalw("failed to connect database", "error", err)
	}

	// sqlite allows one writer at a time; a single connection makes
	// concurrent batches queue instead of failing with a busy error
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalw("failed to access database handle", "error", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Migrate the schema
	err = db.AutoMigrate(&User{}, &Page{}, &Content{}, &Image{}, &Session{}, &Setting{})
	if err != nil {
		logger.Fatalw("failed to migrate database", "error", err)
	}
}

func initRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins, err := validateOrigins(viper.GetString("server.cors_origins"))
	if err != nil {
		logger.Fatalw("invalid cors origins", "error", err)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseAllowedOrigins(origins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/pages", listPagesHandler)
		r.Get("/pages/{id}", getPageHandler)
		r.With(requireAuth).Post("/pages", createPageHandler)
		r.With(requireAuth).Put("/pages/{id}", updatePageHandler)
		r.With(requireAuth).Delete("/pages/{id}", deletePageHandler)

		r.Get("/images", listImagesHandler)
		r.Get("/websitename", getWebsiteNameHandler)
		r.With(requireAuth).Put("/websitename", updateWebsiteNameHandler)

		r.Get("/users", listUsersHandler)

		maxAttempts := viper.GetInt("login.max_attempts_per_minute")
		if maxAttempts <= 0 {
			maxAttempts = constants.LOGIN_MAX_ATTEMPTS
		}
		r.With(httprate.LimitByIP(maxAttempts, time.Minute)).
			Post("/session", loginHandler)
		r.With(requireAuth).Delete("/session", logoutHandler)
		r.With(requireAuth).Get("/session/current", currentSessionHandler)
	})

	return r
}

func main() {
	initConfig()
	initLogger()
	defer logger.Sync()

	initDatabase(viper.GetString("database.path"))

	if viper.GetBool("seed.enabled") {
		if err := seedDatabase(); err != nil {
			logger.Fatalw("failed to seed database", "error", err)
		}
	}

	addr := ":" + viper.GetString("server.port")
	srv := &http.Server{
		Addr:         addr,
		Handler:      initRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
}
