package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/harperdesk/dedupe/config"
	candidaterepo "github.com/harperdesk/dedupe/internal/repositories/candidate"
	contactrepo "github.com/harperdesk/dedupe/internal/repositories/contact"
	mergerecordrepo "github.com/harperdesk/dedupe/internal/repositories/mergerecord"
	touchpointrepo "github.com/harperdesk/dedupe/internal/repositories/touchpoint"
	"github.com/harperdesk/dedupe/pkg/batch"
	"github.com/harperdesk/dedupe/pkg/database"
	"github.com/harperdesk/dedupe/pkg/events"
	"github.com/harperdesk/dedupe/pkg/kafka"
	"github.com/harperdesk/dedupe/pkg/matching"
	"github.com/harperdesk/dedupe/pkg/merging"
	"github.com/harperdesk/dedupe/pkg/middleware"
	"github.com/harperdesk/dedupe/pkg/models"
	"github.com/harperdesk/dedupe/pkg/normalize"
	batchroutes "github.com/harperdesk/dedupe/pkg/routes/batch"
	candidateroutes "github.com/harperdesk/dedupe/pkg/routes/candidate"
	contactroutes "github.com/harperdesk/dedupe/pkg/routes/contact"
	"github.com/harperdesk/dedupe/pkg/routes/health"
	"github.com/harperdesk/dedupe/pkg/startup"
	"github.com/harperdesk/dedupe/pkg/tracing"
	"github.com/harperdesk/dedupe/pkg/tracing/exporters"
)

const version = "0.3.0"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing, continuing without")
		} else {
			defer shutdown(context.Background())
		}
	}

	matchConfig, err := matching.NewConfig(&cfg)
	if err != nil {
		logger.WithError(err).Error("Invalid matching configuration")
		os.Exit(1)
	}

	// Kafka producer for lifecycle events
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaOutputTopic != "" {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}
	emitter := events.NewEmitter(producer, logger)

	// External dependencies come up through the startup manager so a database
	// or broker that is still booting delays readiness instead of killing the
	// process. Repositories and engines are built once the database is up.
	var (
		sqlxDB       *sqlx.DB
		contacts     *contactrepo.Repository
		candidates   *candidaterepo.Repository
		matcher      *matching.Engine
		merger       *merging.Engine
		orchestrator *batch.Orchestrator
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&serviceDependency{
		name: "database",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)
			var err error
			sqlxDB, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
				return err
			}

			db := database.NewDatabaseInstance(sqlxDB, logger)
			contacts = contactrepo.NewRepository(db, logger)
			candidates = candidaterepo.NewRepository(db, logger)
			touchpoints := touchpointrepo.NewRepository(db, logger)
			mergeRecords := mergerecordrepo.NewRepository(db, logger)

			matcher = matching.NewEngine(matchConfig, contacts, candidates, logger)
			mergeDefaults := models.MergeOptions{
				ConcatNotes: cfg.MergeConcatNotes,
				Retention:   models.RetentionPolicy(cfg.MergeRetentionPolicy),
			}
			merger = merging.NewEngine(contacts, candidates, touchpoints, mergeRecords, emitter, mergeDefaults, cfg.MergeTxTimeout, logger)
			orchestrator = batch.NewOrchestrator(batch.Config{
				ChunkSize:          cfg.BatchChunkSize,
				DefaultDays:        cfg.BatchDefaultDays,
				MaxContacts:        cfg.BatchMaxContacts,
				AutoMergeEnabled:   cfg.AutoMergeEnabled,
				AutoMergeMaxPerRun: cfg.AutoMergeMaxPerRun,
			}, contacts, candidates, matcher, merger, emitter, logger)
			return nil
		},
		stop: func(context.Context) error {
			return sqlxDB.Close()
		},
	})

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(&serviceDependency{
			name:      "kafka-consumer",
			dependsOn: []string{"database"},
			start: func(ctx context.Context) error {
				consumer = kafka.NewConsumer(cfg, logger, contactChangeHandler(contacts, matcher, emitter, logger))
				return consumer.Start(ctx)
			},
			stop: func(context.Context) error {
				return consumer.Stop()
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	// Dependency injection for route handlers
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("Failed to create DI container")
		os.Exit(1)
	}
	if err := registerDependencies(container, contacts, candidates, matcher, merger, orchestrator, emitter); err != nil {
		logger.WithError(err).Error("Failed to register dependencies")
		os.Exit(1)
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(sqlxDB, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	contactroutes.Register(api.Group("/contacts"))
	candidateroutes.Register(api.Group("/candidates"))
	batchroutes.Register(api.Group("/batch"))

	go func() {
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			cancel()
		}
	}()

	logger.WithFields(map[string]any{"app": cfg.AppName, "port": cfg.Port}).Info("Server started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	checker.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down HTTP server cleanly")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop dependencies cleanly")
	}
}

// serviceDependency adapts closures to the startup manager's interface.
type serviceDependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *serviceDependency) GetName() string { return d.name }
func (d *serviceDependency) DependsOn() []string { return d.dependsOn }
func (d *serviceDependency) Start(ctx context.Context) error { return d.start(ctx) }

func (d *serviceDependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func newLogger(cfg config.Config) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		var b []byte
		var err error
		if cfg.PrettyLogs {
			b, err = json.MarshalIndent(msg, "", "  ")
		} else {
			b, err = json.Marshal(msg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to marshal log message: %v\n", err)
			return
		}
		fmt.Println(string(b))
	})
}

func setupTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = &exporters.NoopExporter{}
	if cfg.OTLPEndpoint != "" {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return tp.Shutdown, nil
}

func registerDependencies(
	container ectocontainer.DIContainer,
	contacts *contactrepo.Repository,
	candidates *candidaterepo.Repository,
	matcher *matching.Engine,
	merger *merging.Engine,
	orchestrator *batch.Orchestrator,
	emitter *events.Emitter,
) error {
	if err := ectoinject.RegisterInstance[*contactrepo.Repository](container, contacts); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*candidaterepo.Repository](container, candidates); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matching.Engine](container, matcher); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*merging.Engine](container, merger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*batch.Orchestrator](container, orchestrator); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*events.Emitter](container, emitter)
}

// contactChangeHandler runs the pipeline for a contact announced on the
// intake topic: insert if the message carries a new record, then normalize
// and generate candidates.
func contactChangeHandler(
	contacts *contactrepo.Repository,
	matcher *matching.Engine,
	emitter *events.Emitter,
	logger ectologger.Logger,
) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		change := msg.Change

		contactID := change.ContactID
		if change.Action == "created" && change.Contact != nil {
			created, err := contacts.Create(ctx, change.Contact)
			if err != nil {
				return err
			}
			contactID = created.ID
		}

		c, err := contacts.Get(ctx, contactID)
		if err != nil {
			return err
		}

		normalize.Apply(c)
		if err := contacts.UpdateNormalized(ctx, c); err != nil {
			return err
		}
		emitter.EmitContactNormalized(ctx, c)

		if _, err := matcher.Run(ctx, c.ID); err != nil {
			return err
		}

		logger.WithContext(ctx).WithFields(map[string]any{"contact_id": c.ID, "action": change.Action}).Debug("Processed contact change")
		return nil
	}
}
