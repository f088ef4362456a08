package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notify-gov/admin-portal/auth"
	"github.com/notify-gov/admin-portal/cache"
	"github.com/notify-gov/admin-portal/internal/config"
	"github.com/notify-gov/admin-portal/invites/redemption"
	"github.com/notify-gov/admin-portal/notifyapi"
	"github.com/notify-gov/admin-portal/server"
	"github.com/notify-gov/admin-portal/sessions"
	"github.com/notify-gov/admin-portal/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("portal stopped")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("portal stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg := config.New()
	configureLogging(cfg)
	displayAppName(cfg.GetAppName())

	srv, err := buildServer(cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildServer(cfg config.Config) (*server.Server, error) {
	kv, err := cache.NewFromURL(cfg.GetRedisURL(), cfg.GetRedisEnabled())
	if err != nil {
		return nil, fmt.Errorf("[buildServer] redis: %w", err)
	}

	serializer := token.NewSerializer(cfg.GetSecretKey(), cfg.GetDangerousSalt())
	api := notifyapi.New(
		cfg.GetAPIHostName(),
		cfg.GetAdminClientUserName(),
		cfg.GetAdminClientSecret(),
		cfg.GetRouteSecretKey1(),
		kv,
	)

	var oidcClient *auth.OIDCClient
	if cfg.GetLoginPEM() != "" {
		oidcClient, err = auth.NewOIDCClient(context.Background(), auth.OIDCConfig{
			ClientID:         cfg.GetLoginDotGovClientID(),
			TokenURL:         cfg.GetLoginDotGovAccessTokenURL(),
			UserInfoURL:      cfg.GetLoginDotGovUserInfoURL(),
			CertsURL:         cfg.GetLoginDotGovCertsURL(),
			InitialSignInURL: cfg.GetLoginDotGovInitialSigninURL(),
			LogoutURL:        cfg.GetLoginDotGovLogoutURL(),
			PrivateKeyPEM:    cfg.GetLoginPEM(),
		})
		if err != nil {
			return nil, fmt.Errorf("[buildServer] oidc: %w", err)
		}
	}

	authService, err := auth.NewService(api, oidcClient, kv, serializer, auth.Config{
		GovernmentDomains:  cfg.GetGovernmentEmailDomains(),
		EmailTokenMaxAge:   cfg.GetEmailExpiry(),
		RevalidationWindow: cfg.GetEmailRevalidationWindow(),
		AdminBaseURL:       cfg.GetAdminBaseURL(),
		E2ETestEmail:       cfg.GetE2ETestEmail(),
	})
	if err != nil {
		return nil, fmt.Errorf("[buildServer] auth: %w", err)
	}

	redeemer, err := redemption.NewRedeemer(api)
	if err != nil {
		return nil, fmt.Errorf("[buildServer] redemption: %w", err)
	}

	codec := sessions.NewCodec(cfg.GetSecretKey(), cfg.GetDangerousSalt(), cfg.GetPermanentSessionLifetime())
	return server.New(cfg, api, authService, redeemer, codec, kv), nil
}

func configureLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.GetEnvironment() == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("portal listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("listen and serve")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func displayAppName(appName string) {
	banner := figure.NewFigure(appName, "", true)
	banner.Print()
}
