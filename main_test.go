package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/derivation"
	"github.com/vreid/arena/internal/pkg/journal"
	"github.com/vreid/arena/internal/pkg/ledger"
	"github.com/vreid/arena/internal/pkg/tournament"
)

func resolveWith(t *testing.T, args ...string) *common.Config {
	t.Helper()

	var result *common.Config

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "arena",
		Flags: commonFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := resolveConfig(cmd)
			result = cfg

			return err
		},
	}

	require.NoError(t, cmd.Run(context.Background(), append([]string{"arena"}, args...)))

	return result
}

func TestResolveConfigPrecedence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arena.toml")

	err := os.WriteFile(path, []byte(`
port = 4000
data-dir = "/from/file"
mint-enabled = true
`), 0600)
	require.NoError(t, err)

	cfg := resolveWith(t)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "./arena/data", cfg.DataDir)
	assert.False(t, *cfg.MintEnabled)

	cfg = resolveWith(t, "--config", path)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/from/file", cfg.DataDir)
	assert.True(t, *cfg.MintEnabled)
	assert.Equal(t, "info", cfg.LogLevel)

	cfg = resolveWith(t, "--config", path, "--port", "5000", "--mint-enabled=false")
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "/from/file", cfg.DataDir)
	assert.False(t, *cfg.MintEnabled)
}

func TestRunAudit(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	databaseService, err := common.OpenDatabase(dataDir)
	require.NoError(t, err)

	deriver, err := derivation.NewDeriver("audit-secret")
	require.NoError(t, err)

	tournamentService := &tournament.TournamentService{
		DatabaseService: databaseService,
		Deriver:         deriver,
	}
	ledgerService := &ledger.LedgerService{
		DatabaseService: databaseService,
		MintEnabled:     true,
	}

	_, err = tournamentService.CreateTournament("authority", "T1", 10)
	require.NoError(t, err)

	_, err = ledgerService.Mint("A", 10)
	require.NoError(t, err)

	_, err = tournamentService.RegisterForTournament("A", "T1")
	require.NoError(t, err)

	require.NoError(t, databaseService.Shutdown())

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:   "audit",
		Flags:  append(commonFlags(), &cli.StringSliceFlag{Name: "tournament-id"}),
		Action: runAudit,
	}

	err = cmd.Run(context.Background(), []string{
		"audit", "--data-dir", dataDir, "--derivation-secret", "audit-secret",
	})
	require.NoError(t, err)

	err = cmd.Run(context.Background(), []string{
		"audit", "--data-dir", dataDir, "--derivation-secret", "wrong-secret", "--tournament-id", "T1",
	})
	require.ErrorIs(t, err, tournament.ErrNotFound)
}

func TestDrainEvents(t *testing.T) {
	t.Parallel()

	eventChan := make(chan journal.Event, 1)
	journalService := &journal.JournalService{
		EventSource: eventChan,
		Registry:    metrics.NewRegistry(),
		Logger:      zerolog.New(io.Discard),
	}

	journalDone := journalService.Start()

	assert.False(t, drainEvents(false, eventChan, journalDone, time.Second))

	// the channel is still open, so a late handler can publish
	eventChan <- journal.Event{Type: journal.EventTypePrizeClaimed, Data: []byte(`{"amount":3}`)}

	assert.True(t, drainEvents(true, eventChan, journalDone, time.Second))

	claimed := metrics.GetOrRegisterCounter(journal.PrizesClaimedCounter, journalService.Registry)
	assert.Equal(t, int64(3), claimed.Count())
}
