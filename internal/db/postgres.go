package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/envutil"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := envutil.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := envutil.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := envutil.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := envutil.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := envutil.GetEnv("POSTGRES_NAME", "lessonreel", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Student{},
		&types.Lesson{},
		&types.Video{},
		&types.Milestone{},
		&types.Question{},
		&types.VideoSession{},
		&types.Attempt{},
		&types.Progress{},
		&types.Grade{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
