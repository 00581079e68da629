package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/api"
	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/blob"
	"github.com/erazemk/inventar/internal/config"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/lock"
	"github.com/erazemk/inventar/internal/logging"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/render"
	"github.com/erazemk/inventar/internal/store"
	"github.com/erazemk/inventar/internal/transfer"
)

const usage = "Usage: inventar <init|serve|token> [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "token":
		err = cmdToken(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Println(usage)
		return
	default:
		err = fmt.Errorf("unknown command: %s\n%s", os.Args[1], usage)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment (and envFile) and applies flag overrides.
func loadConfig(envFile, dbPath, addr string) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if addr != "" {
		cfg.Addr = addr
	}
	return cfg, nil
}

func cmdInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	envFile := fs.String("env", ".env", "environment file")
	dbPath := fs.String("db", "", "path to SQLite database file")
	sectors := fs.String("sectors", "", "comma-separated sector names to create")
	fs.Parse(args)

	cfg, err := loadConfig(*envFile, *dbPath, "")
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.DBPath); err == nil {
		return fmt.Errorf("database file %s already exists", cfg.DBPath)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		os.Remove(cfg.DBPath)
		return err
	}

	ctx := context.Background()
	if _, err := store.LoadOrCreateSecret(ctx, database, store.SettingJWTSecret, 32); err != nil {
		return err
	}

	fmt.Printf("Database created: %s\n", cfg.DBPath)
	for _, name := range strings.Split(*sectors, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sector, err := store.CreateSector(ctx, database, name)
		if err != nil {
			return err
		}
		fmt.Printf("Sector created: %s (id %d)\n", sector.Name, sector.ID)
	}
	return nil
}

func cmdToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	envFile := fs.String("env", ".env", "environment file")
	dbPath := fs.String("db", "", "path to SQLite database file")
	userID := fs.Int64("user-id", 1, "user id")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	sectorID := fs.Int64("sector", 0, "home sector id (0 for none)")
	manage := fs.Bool("manage", false, "grant the manage permission")
	cross := fs.Bool("cross-sector", false, "allow moving stock of any sector")
	ttl := fs.Duration("ttl", auth.TokenExpiry, "token lifetime")
	fs.Parse(args)

	if *name == "" {
		return errors.New("-name is required")
	}

	cfg, err := loadConfig(*envFile, *dbPath, "")
	if err != nil {
		return err
	}

	secret, err := jwtSecret(context.Background(), cfg)
	if err != nil {
		return err
	}

	actor := model.Actor{
		UserID:      *userID,
		Name:        *name,
		Email:       *email,
		CanManage:   *manage,
		CrossSector: *cross,
	}
	if *sectorID > 0 {
		actor.SectorID = sectorID
	}

	token, err := auth.GenerateToken(secret, actor, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// jwtSecret returns the configured secret, falling back to the one persisted
// in the database.
func jwtSecret(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret, nil
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return "", err
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		return "", err
	}
	return store.LoadOrCreateSecret(ctx, database, store.SettingJWTSecret, 32)
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	envFile := fs.String("env", ".env", "environment file")
	dbPath := fs.String("db", "", "path to SQLite database file")
	addr := fs.String("addr", "", "listen address")
	fs.Parse(args)

	cfg, err := loadConfig(*envFile, *dbPath, *addr)
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogPath)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}
	log.WithField("path", cfg.DBPath).Info("database ready")

	secret := cfg.JWTSecret
	if secret == "" {
		if secret, err = store.LoadOrCreateSecret(ctx, database, store.SettingJWTSecret, 32); err != nil {
			return err
		}
	}

	opts := api.Options{DB: database, JWTSecret: secret, Log: log}

	var blobs blob.Store
	switch cfg.StorageProvider {
	case config.StorageGCS:
		gcs, err := blob.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON, cfg.StorageAccessBaseURL)
		if err != nil {
			return err
		}
		defer gcs.Close()
		blobs = gcs
	default:
		sqlStore := &blob.SQLStore{DB: database, BaseURL: strings.TrimRight(cfg.PublicBaseURL, "/") + "/files"}
		opts.Files = sqlStore
		blobs = sqlStore
	}
	log.WithField("provider", cfg.StorageProvider).Info("blob storage ready")

	renderer := &render.Chromium{Bin: cfg.ChromeBin}
	defer renderer.Close()

	svc := transfer.New(database, blobs, renderer, log)
	svc.PublicBaseURL = cfg.PublicBaseURL
	svc.TokenTTL = cfg.TokenTTL()
	svc.RenderTimeout = cfg.RenderTimeout

	if cfg.RedisURL != "" {
		locker, client, err := lock.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		svc.Locker = locker
		log.Info("using redis finalization lock")
	}
	opts.Transfers = svc

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server forced to shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":            cfg.Addr,
		"public_base_url": cfg.PublicBaseURL,
	}).Info("server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped, closing database")
	return nil
}
