package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/craftxbox/unrealircd-s2s-client/internal/config"
	"github.com/craftxbox/unrealircd-s2s-client/internal/s2s"
	"github.com/craftxbox/unrealircd-s2s-client/internal/state"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("c", "./config.yaml", "Path to configuration file")
	showVersion := flag.Bool("v", false, "Show version information and exit")
	debug := flag.Bool("d", false, "Enable trace logging of raw protocol lines")
	flag.Parse()

	if *showVersion {
		fmt.Printf("s2sclient version %s\n", version)
		fmt.Printf("Built: %s\n", buildDate)
		fmt.Printf("Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	s2s.Version = version
	s2s.BuildDate = buildDate
	s2s.GitCommit = gitCommit

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.TraceLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	conn, err := dial(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("failed to connect")
	}

	client := s2s.NewClient(cfg, logger)
	done := make(chan struct{})

	client.Events().HandleRegistered(func(ev *s2s.RegisteredEvent) {
		logger.Info().Str("server", ev.Name).Msg("link registered")
	})
	client.Events().HandleSynced(func() {
		logger.Info().Msg("network state synchronized")
		demo(logger, client)
	})
	client.Events().HandlePeerSynced(func(sid string) {
		logger.Info().Str("sid", sid).Msg("peer finished bursting")
	})
	client.Events().HandleDisconnected(func(err error) {
		if err != nil {
			logger.Error().Err(err).Msg("link lost")
		} else {
			logger.Info().Msg("link closed")
		}
		close(done)
	})

	if err := client.Connect(conn); err != nil {
		logger.Fatal().Err(err).Msg("failed to start link")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Stringer("signal", sig).Msg("shutting down")
		client.Disconnect("Received shutdown signal", true)
	}()

	<-done
}

// dial establishes the TLS transport. For certificate-fingerprint
// auth the client keypair is loaded here; the engine itself never
// touches key material.
func dial(cfg *config.Config) (net.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: true}
	if cfg.AuthMethod == config.AuthCertFP {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tls.Dial("tcp", cfg.Addr(), tlsCfg)
}

// demo introduces a service user and parks it on an admin channel
// once the initial burst completes.
func demo(logger zerolog.Logger, client *s2s.Client) {
	u := &state.User{
		Nick:     "S2SDemo",
		Username: "demo",
		RealName: "S2S client demo user",
	}
	if err := client.RegisterUser(u, false); err != nil {
		logger.Error().Err(err).Msg("failed to register demo user")
		return
	}
	if err := client.SJoinToChannel("#services", "@"+u.UID); err != nil {
		logger.Error().Err(err).Msg("failed to join demo user")
	}
}
