package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"roofpro-hub/config"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/crm"
	"roofpro-hub/internal/database"
	"roofpro-hub/internal/logging"
	"roofpro-hub/internal/mailer"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/services/integrations/handler"
	"roofpro-hub/internal/weather"
)

func main() {
	cfg := config.LoadConfig()
	log := logging.Setup("integrations", cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.URL)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}

	if err := database.MigrateIntegrationsDB(db); err != nil {
		log.Fatalf("Failed to migrate Integrations database: %v", err)
	}

	queue := notify.NewQueue(redisClient)

	// Without an API key jobs stay queued until a worker with one starts.
	renderer, err := mailer.NewRenderer(cfg.Email.From, cfg.Email.PortalURL)
	if err != nil {
		log.Fatalf("Failed to load email templates: %v", err)
	}
	sender, err := mailer.NewResendSender(cfg.Email.ResendAPIKey, nil)
	switch {
	case errors.Is(err, mailer.ErrNoAPIKey):
		log.Warn("RESEND_API_KEY is not set, email worker disabled")
	case err != nil:
		log.Fatalf("Failed to configure email sender: %v", err)
	default:
		worker := mailer.NewWorker(queue, sender, renderer, db, log.WithField("component", "mailer"))
		go worker.Run(ctx)
	}

	var jobs handler.JobSource
	crmClient, err := crm.New(crm.Config{
		BaseURL:           cfg.CRM.BaseURL,
		APIKey:            cfg.CRM.APIKey,
		PageSize:          cfg.CRM.PageSize,
		RequestsPerSecond: cfg.CRM.RequestsPerS,
	})
	switch {
	case errors.Is(err, crm.ErrNotConfigured):
		log.Warn("CRM_API_KEY is not set, CRM sync disabled")
	case err != nil:
		log.Fatalf("Failed to configure CRM client: %v", err)
	default:
		jobs = crmClient
	}

	integrationsHandler := handler.NewIntegrationsHandler(db, cache.New(redisClient, log), queue, jobs, weather.New(cfg.Weather.BaseURL, nil), log)

	if jobs != nil {
		poller, err := integrationsHandler.StartPoller(ctx, cfg.CRM.PollSchedule)
		if err != nil {
			log.Fatalf("Failed to start CRM poller: %v", err)
		}
		defer poller.Stop()
	}

	_, port, err := net.SplitHostPort(cfg.Services.Integrations)
	if err != nil {
		log.Fatalf("Invalid INTEGRATIONS_SERVICE_ADDR %q: %v", cfg.Services.Integrations, err)
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	s := grpc.NewServer(grpc.UnaryInterceptor(logging.UnaryServerInterceptor(log)))
	integrationsHandler.Service().Register(s)

	reflection.Register(s)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down Integrations service")
		s.GracefulStop()
	}()

	log.Infof("Integrations service listening on :%s", port)
	if err := s.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
