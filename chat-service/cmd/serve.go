package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/handler"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/hub"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/kafka"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/service"
	"github.com/Karthikchakala/HospitalManagement/pkg/database"
	"github.com/Karthikchakala/HospitalManagement/pkg/jwt"
	pkglog "github.com/Karthikchakala/HospitalManagement/pkg/log"
	"github.com/Karthikchakala/HospitalManagement/pkg/middleware"
	"github.com/Karthikchakala/HospitalManagement/pkg/pubsub"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadFrom(dir)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServer(cfg)
		},
	}
}

func newProducer(cfg config.KafkaConfig) (kafka.MessageProducer, error) {
	switch cfg.Driver {
	case "", "none":
		return kafka.NoopProducer{}, nil
	case "kafka":
		return kafka.NewConfluentProducer(cfg.Brokers, cfg.Topic, cfg.Partitions)
	default:
		return nil, fmt.Errorf("unknown kafka driver %q", cfg.Driver)
	}
}

func runServer(cfg *config.Config) error {
	l := pkglog.Setup(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Service: "chat-service"}, os.Stdout)

	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat service")

	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	l.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, repository.ChatModels()...); err != nil {
			return fmt.Errorf("failed to migrate chat tables: %w", err)
		}
	}

	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("failed to initialize pubsub: %w", err)
	}
	defer bus.Close()
	l.Info().Str("driver", cfg.PubSub.Driver).Msg("room fan-out ready")

	producer, err := newProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka producer: %w", err)
	}
	if cfg.Kafka.Driver == "kafka" {
		l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing chat events to kafka")
	}

	messages := repository.NewGormMessageRepository(db)
	directory := repository.NewGormDirectoryRepository(db)

	wsHub := hub.NewHub(cfg.WebSocket)
	chatSvc := service.NewChatService(wsHub, messages, bus, producer, cfg.Chat.RoomLockStripes)

	var (
		principals  *service.PrincipalResolver
		restHandler *handler.HTTPHandler
		authMw      *middleware.AuthMiddleware
	)
	if cfg.Auth.JWTSecret != "" {
		tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
		principals = service.NewPrincipalResolver(tokens, directory)
		authMw = middleware.NewAuthMiddleware(tokens)
		restHandler = handler.NewHTTPHandler(directory, service.NewHistoryLoader(messages), principals, cfg.Chat)
	} else if cfg.Auth.RequireWSAuth {
		return errors.New("auth.require_ws_auth is set but auth.jwt_secret is empty")
	} else {
		l.Warn().Msg("JWT_SECRET not set: REST routes disabled, websocket connections are anonymous")
	}

	wsHandler := handler.NewWSHandler(wsHub, chatSvc, principals, cfg.Auth.RequireWSAuth, cfg.WebSocket, cfg.CORS.AllowedOrigins)
	router := handler.NewRouter(l, wsHub, wsHandler, restHandler, authMw)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	if err := chatSvc.Start(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		l.Info().Str("addr", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down chat service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			l.Error().Err(err).Msg("server forced to shutdown")
		}
		return chatSvc.Stop()
	})

	err = g.Wait()
	l.Info().Msg("chat service stopped")
	return err
}
