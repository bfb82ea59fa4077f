package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/controllers"
	"github.com/ManuelReschke/LabelFox/internal/pkg/billing"
	"github.com/ManuelReschke/LabelFox/internal/pkg/cache"
	"github.com/ManuelReschke/LabelFox/internal/pkg/database"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/LabelFox/internal/pkg/labels"
	"github.com/ManuelReschke/LabelFox/internal/pkg/objectstore"
	"github.com/ManuelReschke/LabelFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/LabelFox/internal/pkg/reports"
	"github.com/ManuelReschke/LabelFox/internal/pkg/router"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usage"
	"github.com/ManuelReschke/LabelFox/internal/pkg/workspace"
)

func main() {
	app := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down")
		if m := jobqueue.GetManager(); m != nil {
			m.Stop()
		}
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	store := setupObjectStore()
	setupServices(db, store)

	app := fiber.New(ratelimit.TrustProxiesFromEnv(fiber.Config{
		BodyLimit: env.GetInt("MAX_UPLOAD_BYTES", 20*1024*1024),
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

// setupObjectStore uses S3 when configured. Development falls back to an
// in-memory store.
func setupObjectStore() objectstore.Store {
	cfg := objectstore.LoadConfig()
	if !cfg.IsConfigured() {
		if !env.IsDev() {
			log.Fatal("S3 storage is not configured (S3_BUCKET_NAME, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY)")
		}
		log.Println("S3 storage is not configured, using in-memory object store")
		return objectstore.NewMemory()
	}
	client, err := objectstore.NewClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}
	return client
}

func setupServices(db *gorm.DB, store objectstore.Store) {
	usageSvc := usage.NewServiceFromDB(db)
	reportSvc := reports.NewService(db, store)

	manager := jobqueue.InitManager(db, reportSvc.Process)
	reportSvc.WithNotifier(manager.GetQueue().Notify)
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start report workers: %v", err)
	}

	controllers.SetServices(&controllers.Services{
		Workspaces: workspace.NewServiceFromDB(db),
		Usage:      usageSvc,
		Billing:    billing.NewServiceFromDB(db),
		Reconciler: billing.NewReconcilerFromEnv(db),
		Labels:     labels.NewServiceFromEnv(db, usageSvc, store),
		Reports:    reportSvc,
	})
}
