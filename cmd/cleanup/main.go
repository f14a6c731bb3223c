// Command cleanup runs one pass of expired registration cleanup for an external
// scheduler. With -force-migration-version it instead clears a dirty migration state.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"gorm.io/gorm/logger"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/config"
	pgRepo "github.com/aifraenkel/artist-finance-manager-sub002/internal/repository/postgres"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/service"
	"github.com/aifraenkel/artist-finance-manager-sub002/pkg/database"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	forceVersion := flag.Int("force-migration-version", -1, "force the migration version to clean a dirty state, then exit")
	timeout := flag.Duration("timeout", 5*time.Minute, "cleanup deadline")
	flag.Parse()

	cfg, err := config.LoadDatabase(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *forceVersion >= 0 {
		if err := forceMigrationVersion(cfg.Database, *forceVersion); err != nil {
			log.Fatalf("Failed to force migration version: %v", err)
		}
		fmt.Printf("Success! Migration version forced to %d.\n", *forceVersion)
		return
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	pendingRepo, err := pgRepo.NewPendingRegistrationRepo(db)
	if err != nil {
		log.Fatalf("Failed to initialize PendingRegistrationRepo: %v", err)
	}
	registrations, err := service.NewRegistrationService(pendingRepo)
	if err != nil {
		log.Fatalf("Failed to initialize RegistrationService: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deleted, err := registrations.CleanupExpiredRegistrations(ctx)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}
	log.Printf("Cleanup finished, deleted %d expired pending registration(s)", deleted)
}

// forceMigrationVersion goes through database/sql so it works even when the
// schema is too broken for the application to start.
func forceMigrationVersion(cfg config.DatabaseConfig, version int) error {
	db, err := sql.Open("postgres", cfg.PostgresConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsPath, "postgres", driver)
	if err != nil {
		return err
	}

	log.Printf("Forcing migration version to %d to clean dirty state...", version)
	return m.Force(version)
}
