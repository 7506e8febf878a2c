package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gateway "github.com/adonese/crud/apigateway"
	"github.com/adonese/crud/ddb"
	"github.com/adonese/crud/puppy"
	"github.com/adonese/crud/resource"
	"github.com/adonese/crud/store"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// app is the wired backend plus the resources served over it.
type app struct {
	cfg     Config
	db      *gorm.DB
	puppies *resource.Resource[puppy.Puppy, puppy.Input, puppy.Output]
	ensure  func(context.Context) error
	ping    func(context.Context) error
	close   func() error
}

func newApp(ctx context.Context, cfg Config) (*app, error) {
	a := &app{cfg: cfg, close: func() error { return nil }}
	var sessions resource.SessionFunc[puppy.Puppy]

	if cfg.Driver == DriverDynamoDB {
		client, err := ddb.NewClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		table, err := ddb.NewTable[puppy.Puppy](client, cfg.DynamoDB.Table, "id")
		if err != nil {
			return nil, err
		}
		sessions = table.Sessions()
		a.ensure = func(ctx context.Context) error {
			created, err := table.Ensure(ctx, client)
			if created {
				logrusLogger.WithField("table", cfg.DynamoDB.Table).Info("dynamodb_table_created")
			}
			return err
		}
		a.ping = func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: &cfg.DynamoDB.Table})
			return err
		}
	} else {
		db, err := store.Open(cfg.Database, store.WithLogger(logrusLogger))
		if err != nil {
			return nil, err
		}
		a.db = db
		sessions = store.Sessions[puppy.Puppy](db)
		a.ensure = func(ctx context.Context) error { return store.Migrate(ctx, db, &puppy.Puppy{}) }
		a.ping = func(ctx context.Context) error { return store.Ping(ctx, db) }
		a.close = func() error { return store.Close(db) }
	}

	puppies, err := puppy.NewResource(sessions, logrusLogger)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.puppies = puppies
	return a, nil
}

// GetMainEngine builds the gin engine serving every resource.
func GetMainEngine(a *app, sampling gateway.LogSamplingConfig) *gin.Engine {
	if !a.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	route := gin.New()
	route.Use(
		gateway.Recovery(logrusLogger),
		gateway.RequestID(),
		gateway.RequestLogger(logrusLogger, sampling),
		gateway.Instrumentation(prometheus.DefaultRegisterer),
		gateway.OptionsMiddleware,
	)

	route.GET("/metrics", gin.WrapH(promhttp.Handler()))
	route.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "driver": a.cfg.Driver})
	})

	var mw []gin.HandlerFunc
	if a.db != nil {
		mw = append(mw, gateway.Transaction(a.db, logrusLogger))
	}
	a.puppies.Mount(route, mw...)
	return route
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	sampling := configureLogger(cfg)

	if shutdown := initOTel(ctx, cfg.Otel, logrusLogger); shutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logrusLogger.WithError(err).Warn("otel shutdown failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.ensure(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           GetMainEngine(a, sampling),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrusLogger.WithFields(map[string]interface{}{"port": cfg.Port, "driver": cfg.Driver}).Info("server_started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logrusLogger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	configureLogger(cfg)
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.ensure(ctx); err != nil {
		return err
	}
	logrusLogger.WithField("driver", cfg.Driver).Info("migrations_applied")
	return nil
}
