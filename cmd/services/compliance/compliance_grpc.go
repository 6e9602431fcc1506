package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"roofpro-hub/config"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database"
	"roofpro-hub/internal/logging"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/services/compliance/handler"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.Setup("compliance", cfg.LogLevel, cfg.Environment)

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.URL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := database.MigrateComplianceDB(db); err != nil {
		log.Fatalf("Failed to migrate Compliance database: %v", err)
	}

	_, port, err := net.SplitHostPort(cfg.Services.Compliance)
	if err != nil {
		log.Fatalf("Invalid COMPLIANCE_SERVICE_ADDR %q: %v", cfg.Services.Compliance, err)
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(logging.UnaryServerInterceptor(log)))

	complianceHandler := handler.NewComplianceHandler(db, cache.New(redisClient, log), notify.NewQueue(redisClient), log)

	catalog, err := handler.DefaultCatalog()
	if err != nil {
		log.Fatalf("Failed to load SOP catalog: %v", err)
	}
	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	seeded, err := complianceHandler.SeedCatalog(seedCtx, catalog)
	cancel()
	if err != nil {
		log.Fatalf("Failed to seed SOP catalog: %v", err)
	}
	log.WithField("inserted", seeded).Info("SOP catalog seeded")

	complianceHandler.Service().Register(s)

	reflection.Register(s)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down Compliance service")
		s.GracefulStop()
	}()

	log.Infof("Compliance service listening on :%s", port)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
