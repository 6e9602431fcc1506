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
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/services/user/handler"
	"roofpro-hub/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.Setup("user", cfg.LogLevel, cfg.Environment)

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.URL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := database.MigrateUserDB(db); err != nil {
		log.Fatalf("Failed to migrate User database: %v", err)
	}

	tokens, err := utils.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to configure tokens: %v", err)
	}

	_, port, err := net.SplitHostPort(cfg.Services.User)
	if err != nil {
		log.Fatalf("Invalid USER_SERVICE_ADDR %q: %v", cfg.Services.User, err)
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(logging.UnaryServerInterceptor(log)))

	userHandler := handler.NewUserHandler(db, cache.New(redisClient, log), tokens, notify.NewQueue(redisClient), log)
	userHandler.Service().Register(s)

	reflection.Register(s)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down User service")
		s.GracefulStop()
	}()

	log.Infof("User service listening on :%s", port)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
