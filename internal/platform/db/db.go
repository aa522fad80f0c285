package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	types "github.com/openjordi/openjordi-backend/internal/domain"
	"github.com/openjordi/openjordi-backend/internal/platform/envutil"
	"github.com/openjordi/openjordi-backend/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New connects using DB_DRIVER (postgres, default) or sqlite (local runs,
// DB_PATH). Postgres connection details come from the POSTGRES_* env vars.
func New(log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DBService")

	driver := strings.ToLower(envutil.Get("DB_DRIVER", "postgres", log))

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "sqlite":
		path := envutil.Get("DB_PATH", "openjordi.db", log)
		serviceLog.Info("Connecting to sqlite...", "path", path)
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
	default:
		host := envutil.Get("POSTGRES_HOST", "localhost", log)
		port := envutil.Get("POSTGRES_PORT", "5432", log)
		user := envutil.Get("POSTGRES_USER", "postgres", log)
		password := envutil.Get("POSTGRES_PASSWORD", "", log)
		name := envutil.Get("POSTGRES_NAME", "openjordi", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

		serviceLog.Info("Connecting to Postgres...", "host", host, "database", name)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
		})
	}
	if err != nil {
		serviceLog.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}

	return &Service{db: db, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Organization{},
		&types.Investigator{},
		&types.GrantProject{},
		&types.GrantInvestigator{},
		&types.SourceBatch{},
		&types.ReviewFlag{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}

	if s.db.Dialector.Name() != "postgres" {
		return nil
	}

	s.log.Info("Configuring foreign key relationships...")
	stmts := []string{
		`ALTER TABLE "investigator"
		 ADD CONSTRAINT "fk_investigator_organization_id"
		 FOREIGN KEY ("organization_id")
		 REFERENCES "organization"("id")
		 ON DELETE SET NULL`,
		`ALTER TABLE "grant_project"
		 ADD CONSTRAINT "fk_grant_project_funder_org_id"
		 FOREIGN KEY ("funder_org_id")
		 REFERENCES "organization"("id")
		 ON DELETE SET NULL`,
		`ALTER TABLE "grant_investigator"
		 ADD CONSTRAINT "fk_grant_investigator_grant_project_id"
		 FOREIGN KEY ("grant_project_id")
		 REFERENCES "grant_project"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "grant_investigator"
		 ADD CONSTRAINT "fk_grant_investigator_investigator_id"
		 FOREIGN KEY ("investigator_id")
		 REFERENCES "investigator"("id")
		 ON DELETE CASCADE`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			s.log.Error("Foreign key DDL failed", "error", err)
			return err
		}
	}
	return nil
}
