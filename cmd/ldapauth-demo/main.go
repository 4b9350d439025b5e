// Package main provides a demo host-simulator binary that wires the LDAP
// authentication core against an in-memory Host, standing in for the real
// key-value server's module SDK (spec §6). It reads "username password"
// lines from stdin and reports the verdict each one produces, the way the
// host's own command thread would.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/netresearch/ldap-manager/internal/host"
	"github.com/netresearch/ldap-manager/internal/ldap"
	"github.com/netresearch/ldap-manager/internal/options"
	"github.com/netresearch/ldap-manager/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msgf("ldapauth-demo %s starting...", version.FormatVersion())

	opts, err := options.Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	log.Logger = log.Logger.Level(opts.LogLevel)

	module, err := initModule(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ldap core")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	mockHost := host.NewMockHost()
	runREPL(ctx, mockHost, module)

	log.Info().Msg("shutting down ldap core...")

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- module.Deinit() }()

	select {
	case err := <-shutdownDone:
		if err != nil {
			log.Error().Err(err).Msg("error during shutdown")
			os.Exit(1)
		}
	case <-time.After(shutdownTimeout):
		log.Error().Msg("shutdown timed out")
		os.Exit(1)
	}

	log.Info().Msg("graceful shutdown complete")
}

func initModule(opts *options.Opts) (*ldap.Module, error) {
	settings, err := opts.Settings()
	if err != nil {
		return nil, err
	}

	authMode, err := opts.AuthModeValue()
	if err != nil {
		return nil, err
	}

	m := ldap.NewModule()
	if err := m.Init(ldap.InitOptions{
		Servers:                 opts.Servers,
		Settings:                settings,
		ConnectionSettings:      opts.ConnectionSettings(),
		AuthMode:                authMode,
		AuthEnabled:             opts.AuthEnabled,
		FailureDetectorInterval: opts.FailureDetectorInterval(),
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// runREPL reads "username password" lines from stdin until ctx is
// cancelled or EOF, printing the verdict each attempt produces.
func runREPL(ctx context.Context, h *host.MockHost, m *ldap.Module) {
	fmt.Println("ldapauth-demo ready. Enter \"username password\", or Ctrl-D to quit.")

	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			handleLine(h, m, line)
		}
	}
}

func handleLine(h *host.MockHost, m *ldap.Module, line string) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	if len(parts) != 2 {
		fmt.Println("usage: <username> <password>")

		return
	}

	token := host.NewMockToken()
	verdict := host.Authenticate(h, m, token, parts[0], parts[1])

	if verdict == host.VerdictHandledPending {
		token.Wait()

		if token.Err != nil {
			fmt.Printf("%s: NOT_HANDLED (%v)\n", parts[0], token.Err)

			return
		}

		fmt.Printf("%s: HANDLED\n", parts[0])

		return
	}

	fmt.Printf("%s: %s\n", parts[0], verdict)
}
