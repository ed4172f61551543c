package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/events"
	"github.com/relaygate/go-relay-server/internal/config"
	"github.com/relaygate/go-relay-server/mailer"
	"github.com/relaygate/go-relay-server/redisstore"
	"github.com/relaygate/go-relay-server/relay"
	"github.com/relaygate/go-relay-server/server"
	"github.com/relaygate/go-relay-server/storage"
	"github.com/relaygate/go-relay-server/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func main() {
	setupLogging()
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	db, err := storage.Open(storage.Config{
		Host:     c.GetPostgresHost(),
		Port:     c.GetPostgresPort(),
		User:     c.GetPostgresUser(),
		Password: c.GetPostgresPassword(),
		DBName:   c.GetPostgresDB(),
		SSLMode:  c.GetPostgresSSLMode(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close(db) }()

	if err := storage.AutoMigrate(db); err != nil {
		return errors.Wrap(err, "auto migrate")
	}

	directory := storage.NewAccountRepository(db)
	tokenRepo, err := buildTokenRepo(c, db)
	if err != nil {
		return err
	}

	policy := token.NewPolicy(c.GetDailyQuota())
	issuer, err := token.NewIssuer(tokenRepo, directory, policy,
		token.WithStorageTimeout(c.GetStorageTimeout()))
	if err != nil {
		return err
	}
	authorizer, err := relay.NewAuthorizationService(
		relay.Repos{Tokens: tokenRepo, Accounts: directory},
		policy,
		relay.WithStorageTimeout(c.GetStorageTimeout()),
		relay.WithSendTimeout(c.GetSendTimeout()),
	)
	if err != nil {
		return err
	}

	var producer *events.Producer
	if brokers := c.GetKafkaBrokers(); len(brokers) > 0 {
		producer = events.NewProducer(brokers, c.GetKafkaTopic())
		defer func() { _ = producer.Close() }()
	}

	srv, err := server.New(c, server.Deps{
		Issuer:     issuer,
		Authorizer: authorizer,
		Directory:  directory,
		Gateway:    mailer.New(),
		Events:     producer,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildTokenRepo picks the token store backend. Sender accounts always
// live in Postgres; only the token records can be moved to Redis.
func buildTokenRepo(c config.Config, db *gorm.DB) (token.Repo, error) {
	switch backend := c.GetStoreBackend(); backend {
	case config.StoreBackendPostgres:
		return storage.NewTokenRepository(db), nil
	case config.StoreBackendRedis:
		client, err := redisstore.NewClient(redisstore.Config{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err != nil {
			return nil, err
		}
		return redisstore.NewTokenRepository(client), nil
	default:
		return nil, errors.Errorf("unknown store backend %q", backend)
	}
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
