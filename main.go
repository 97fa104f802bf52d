package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/derivation"
	"github.com/vreid/arena/internal/pkg/journal"
	"github.com/vreid/arena/internal/pkg/ledger"
	"github.com/vreid/arena/internal/pkg/tournament"

	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

var ErrEscrowUnbalanced = errors.New("escrow audit failed")

type ArenaService struct {
	LoggerService   *common.LoggerService   `do:""`
	DatabaseService *common.DatabaseService `do:""`
	EchoService     *common.EchoService     `do:""`

	LedgerService     *ledger.LedgerService         `do:""`
	TournamentService *tournament.TournamentService `do:""`
	JournalService    *journal.JournalService       `do:""`
}

// resolveConfig layers explicitly set flags over the config file over flag defaults.
func resolveConfig(cmd *cli.Command) (*common.Config, error) {
	cfg, err := common.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	for name, value := range map[string]*string{
		"data-dir":          &cfg.DataDir,
		"derivation-secret": &cfg.DerivationSecret,
		"log-level":         &cfg.LogLevel,
		"log-format":        &cfg.LogFormat,
		"log-file":          &cfg.LogFile,
	} {
		if cmd.IsSet(name) || len(*value) == 0 {
			*value = cmd.String(name)
		}
	}

	if cmd.IsSet("port") || cfg.Port == 0 {
		cfg.Port = cmd.Int("port")
	}

	if cmd.IsSet("mint-enabled") || cfg.MintEnabled == nil {
		mintEnabled := cmd.Bool("mint-enabled")
		cfg.MintEnabled = &mintEnabled
	}

	return cfg, nil
}

func provideConfig(i do.Injector, cfg *common.Config) {
	do.ProvideNamedValue(i, "port", cfg.Port)
	do.ProvideNamedValue(i, "data-dir", cfg.DataDir)
	do.ProvideNamedValue(i, "derivation-secret", cfg.DerivationSecret)
	do.ProvideNamedValue(i, "mint-enabled", *cfg.MintEnabled)

	do.ProvideNamedValue(i, "log-level", cfg.LogLevel)
	do.ProvideNamedValue(i, "log-format", cfg.LogFormat)
	do.ProvideNamedValue(i, "log-file", cfg.LogFile)
}

//nolint:funlen
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	i := do.New()

	provideConfig(i, cfg)

	eventChan := make(chan journal.Event, 1000)
	var eventSource <-chan journal.Event = eventChan
	var eventSink chan<- journal.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.ProvideValue(i, metrics.NewRegistry())

	do.Provide(i, common.NewLoggerService)
	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, common.NewEchoService)
	do.Provide(i, derivation.NewDeriverService)

	do.Provide(i, ledger.NewLedgerService)
	do.Provide(i, tournament.NewTournamentService)
	do.Provide(i, journal.NewJournalService)

	do.Provide(i, do.InvokeStruct[ArenaService])

	arenaService, err := do.Invoke[ArenaService](i)
	if err != nil {
		return fmt.Errorf("failed to create arena service: %w", err)
	}

	logger := arenaService.LoggerService.Named("arena")

	journalDone := arenaService.JournalService.Start()

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- arenaService.EchoService.Start()
	}()

	logger.Info().
		Int("port", cfg.Port).
		Str("data_dir", cfg.DataDir).
		Bool("mint_enabled", *cfg.MintEnabled).
		Msg("arena started")

	// stopped is false while a handler may still be running and publishing
	stopped := true

	select {
	case err = <-serverErr:
	case <-ctx.Done():
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err = arenaService.EchoService.Shutdown(shutdownCtx)
		stopped = err == nil
	}

	if !drainEvents(stopped, eventChan, journalDone, shutdownTimeout) {
		logger.Warn().Msg("event consumer not drained, recent events are only in the journal")
	}

	err = errors.Join(err, arenaService.DatabaseService.Shutdown())
	if err != nil {
		logger.Error().Err(err).Msg("arena stopped with error")
	}

	return errors.Join(err, arenaService.LoggerService.Shutdown())
}

// drainEvents closes the event channel and waits for the consumer, but only
// once no handler can publish anymore.
func drainEvents(stopped bool, eventChan chan journal.Event, journalDone <-chan struct{}, timeout time.Duration) bool {
	if !stopped {
		return false
	}

	close(eventChan)

	select {
	case <-journalDone:
		return true
	case <-time.After(timeout):
		return false
	}
}

func runAudit(_ context.Context, cmd *cli.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	i := do.New()

	provideConfig(i, cfg)

	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, derivation.NewDeriverService)

	databaseService, err := do.Invoke[*common.DatabaseService](i)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	defer func() {
		_ = databaseService.Shutdown()
	}()

	deriver, err := do.Invoke[*derivation.Deriver](i)
	if err != nil {
		return fmt.Errorf("failed to create deriver: %w", err)
	}

	tournamentService := &tournament.TournamentService{
		DatabaseService: databaseService,
		Deriver:         deriver,
	}

	tournamentIDs := cmd.StringSlice("tournament-id")
	if len(tournamentIDs) == 0 {
		tournaments, err := tournamentService.ListTournaments()
		if err != nil {
			return err //nolint:wrapcheck
		}

		for _, t := range tournaments {
			tournamentIDs = append(tournamentIDs, t.TournamentID)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	unbalanced := 0

	for _, tournamentID := range tournamentIDs {
		audit, err := tournamentService.AuditEscrow(tournamentID)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if !audit.Balanced {
			unbalanced++
		}

		err = encoder.Encode(audit)
		if err != nil {
			return fmt.Errorf("failed to write audit: %w", err)
		}
	}

	if unbalanced > 0 {
		return fmt.Errorf("%w: %d of %d escrows unbalanced", ErrEscrowUnbalanced, unbalanced, len(tournamentIDs))
	}

	return nil
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Value:   "",
			Usage:   "path to a TOML config file",
			Sources: cli.EnvVars("ARENA_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   3000, //nolint:mnd
			Sources: cli.EnvVars("ARENA_PORT"),
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Value:   "./arena/data",
			Sources: cli.EnvVars("ARENA_DATA_DIR"),
		},
		&cli.StringFlag{
			Name:    "derivation-secret",
			Value:   "secret",
			Sources: cli.EnvVars("ARENA_DERIVATION_SECRET"),
		},
		&cli.BoolFlag{
			Name:    "mint-enabled",
			Value:   false,
			Sources: cli.EnvVars("ARENA_MINT_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Sources: cli.EnvVars("ARENA_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   common.LogFormatConsole,
			Sources: cli.EnvVars("ARENA_LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "log-file",
			Value:   "",
			Sources: cli.EnvVars("ARENA_LOG_FILE"),
		},
	}
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "arena",
		Usage: "tournament escrow service",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "serve the tournament API",
				Flags:  commonFlags(),
				Action: runServer,
			},
			{
				Name:  "audit",
				Usage: "check that every escrow holds exactly what its tournament owes",
				Flags: append(commonFlags(), &cli.StringSliceFlag{
					Name:  "tournament-id",
					Usage: "tournament to audit, repeatable; all when omitted",
				}),
				Action: runAudit,
			},
		},
		DefaultCommand: "server",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Run(ctx, os.Args)

	stop()

	if err != nil {
		log.Fatal(err)
	}
}
