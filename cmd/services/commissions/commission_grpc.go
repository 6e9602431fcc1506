package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"

	"roofpro-hub/config"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database"
	"roofpro-hub/internal/logging"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/services/commissions/handler"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.Setup("commissions", cfg.LogLevel, cfg.Environment)

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.URL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := database.MigrateCommissionDB(db); err != nil {
		log.Fatalf("Failed to migrate Commission database: %v", err)
	}

	_, port, err := net.SplitHostPort(cfg.Services.Commissions)
	if err != nil {
		log.Fatalf("Invalid COMMISSIONS_SERVICE_ADDR %q: %v", cfg.Services.Commissions, err)
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	// Payments ask compliance for holds; the connection is made lazily.
	complianceConn, err := grpc.NewClient(cfg.Services.Compliance, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to create Compliance client: %v", err)
	}
	defer complianceConn.Close()

	s := grpc.NewServer(grpc.UnaryInterceptor(logging.UnaryServerInterceptor(log)))

	commissionHandler := handler.NewCommissionHandler(db, cache.New(redisClient, log), notify.NewQueue(redisClient), complianceapi.NewClient(complianceConn), log)
	commissionHandler.Service().Register(s)

	reflection.Register(s)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down Commission service")
		s.GracefulStop()
	}()

	log.Infof("Commission service listening on :%s", port)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
