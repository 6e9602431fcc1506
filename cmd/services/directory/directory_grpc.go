package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"roofpro-hub/config"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database"
	"roofpro-hub/internal/logging"
	"roofpro-hub/internal/services/directory/handler"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.Setup("directory", cfg.LogLevel, cfg.Environment)

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.URL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := database.MigrateDirectoryDB(db); err != nil {
		log.Fatalf("Failed to migrate Directory database: %v", err)
	}

	_, port, err := net.SplitHostPort(cfg.Services.Directory)
	if err != nil {
		log.Fatalf("Invalid DIRECTORY_SERVICE_ADDR %q: %v", cfg.Services.Directory, err)
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(logging.UnaryServerInterceptor(log)))

	directoryHandler := handler.NewDirectoryHandler(db, cache.New(redisClient, log), log)
	directoryHandler.Service().Register(s)

	reflection.Register(s)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down Directory service")
		s.GracefulStop()
	}()

	log.Infof("Directory service listening on :%s", port)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
