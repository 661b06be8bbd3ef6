package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"silo-be/internal/bootstrap"
	"silo-be/internal/config"
	"silo-be/internal/server"
	"silo-be/internal/tracer"
	"silo-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.App.ServiceName)
	defer shutdownTracer(context.Background())

	// 3. Initialize Database (only the postgres settings store needs it)
	var gormDB *gorm.DB
	if cfg.Database.SettingsStore == "postgres" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment != "production")
		if err != nil {
			log.Printf("[WARN] Unable to connect to GORM DB: %v", err)
		} else {
			gormDB = db
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(ctx, gormDB, cfg)
	defer container.Close()

	// 5. Start Background Services
	go func() {
		log.Println("Background: Starting Consumer Service...")
		if err := container.ConsumerService.Consume(ctx); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()
	go container.ActivityService.Start(ctx)

	// 6. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 7. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
