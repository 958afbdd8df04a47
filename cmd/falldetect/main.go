package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"falldetect/annotator/auth"
	"falldetect/annotator/metadata"
	"falldetect/annotator/metrics"
	"falldetect/annotator/schema"
	"falldetect/annotator/services"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type backendEnv struct {
	DatabasePath string `env:"FALLDETECT_DB" envDefault:"fall_detection.db"`
	JwtSecret    string `env:"JWT_SECRET,required"`
	LogDir       string `env:"LOG_DIR" envDefault:"logs"`

	MaxLoginAttempts  int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	MinPasswordLength int           `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`

	// Origin of the desktop UI shell in dev mode.
	UiOrigin string `env:"UI_ORIGIN" envDefault:"http://localhost:1420"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func initLogging(logFile *os.File) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	slog.Info("logging initialized", "log_file", logFile.Name())
}

// initDb opens (creating if missing) the single embedded store and runs the
// idempotent schema setup. Any failure here is fatal: the process never serves
// against a partially initialized store.
func initDb(path string) *gorm.DB {
	dsn := fmt.Sprintf("%v?_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database at '%v': %v", path, err)
	}

	if err := schema.Migrate(db); err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8765, "Port to run the backend on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}

	var cfg backendEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing environment config: %v", err)
	}

	if err := os.MkdirAll(cfg.LogDir, 0777); err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "falldetect.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.LogDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile)

	db := initDb(cfg.DatabasePath)

	userAuth, err := auth.NewProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.ProviderArgs{
			Secret: []byte(cfg.JwtSecret),
			Policy: auth.LockoutPolicy{
				MaxAttempts:       cfg.MaxLoginAttempts,
				LockDuration:      cfg.LockoutDuration,
				MinPasswordLength: cfg.MinPasswordLength,
			},
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	backend := services.NewBackend(db, userAuth, metadata.FFProbe{})

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.UiOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api/v1", backend.Routes())
	r.Handle("/metrics", metrics.Handler())

	slog.Info("starting server", "port", *port)
	err = http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
