package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/coursebridge-io/equivalency-engine/pkg/config"
	"github.com/coursebridge-io/equivalency-engine/pkg/database"
	"github.com/coursebridge-io/equivalency-engine/pkg/handlers"
	"github.com/coursebridge-io/equivalency-engine/pkg/logging"
	"github.com/coursebridge-io/equivalency-engine/pkg/middleware"
	"github.com/coursebridge-io/equivalency-engine/pkg/repositories"
	"github.com/coursebridge-io/equivalency-engine/pkg/retry"
	"github.com/coursebridge-io/equivalency-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.Database),
		zap.String("database_host", cfg.Database.Host),
		zap.String("catalog_path", cfg.Catalog.Path),
	)

	ctx := context.Background()

	// Connect to PostgreSQL; the database may still be starting up alongside us
	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations through database/sql (golang-migrate needs *sql.DB)
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	// Load the target course catalog and decision policy
	catalog, err := services.LoadCourseCatalog(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("Failed to load course catalog", zap.Error(err))
	}
	logger.Info("Course catalog loaded", zap.Int("courses", len(catalog.Courses)))

	// Repositories
	caseRepo := repositories.NewCaseRepository(db)
	documentRepo := repositories.NewDocumentRepository(db)
	extractionRepo := repositories.NewExtractionRunRepository(db)
	decisionRepo := repositories.NewDecisionRunRepository(db)
	resultRepo := repositories.NewDecisionResultRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)
	evidenceRepo := repositories.NewEvidenceRepository(db)
	chunkRepo := repositories.NewChunkRepository(db)

	// Services
	groundingService := services.NewGroundingService(db, chunkRepo, evidenceRepo, logger)
	packetBuilder := services.NewDecisionPacketBuilder(extractionRepo, evidenceRepo, chunkRepo, catalog, logger)
	caseService := services.NewCaseService(db, caseRepo, documentRepo, extractionRepo, decisionRepo, resultRepo, reviewRepo, evidenceRepo, chunkRepo, logger)
	runService := services.NewRunService(db, caseRepo, extractionRepo, decisionRepo, resultRepo, groundingService, packetBuilder, logger)
	reviewService := services.NewReviewService(db, caseRepo, reviewRepo, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewCaseHandler(caseService, runService, logger).RegisterRoutes(mux)
	handlers.NewReviewHandler(reviewService, logger).RegisterRoutes(mux)
	handlers.NewRunHandler(runService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	logger.Info("Starting equivalency-engine",
		zap.String("addr", cfg.BindAddr+":"+cfg.Port),
		zap.String("version", cfg.Version),
	)
	if err := http.ListenAndServe(cfg.BindAddr+":"+cfg.Port, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
