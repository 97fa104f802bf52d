package common_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/common"
	"go.etcd.io/bbolt"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arena.toml")

	err := os.WriteFile(path, []byte(`
port = 4000
data-dir = "/var/lib/arena"
mint-enabled = false
log-level = "debug"
`), 0600)
	require.NoError(t, err)

	cfg, err := common.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "/var/lib/arena", cfg.DataDir)
	require.NotNil(t, cfg.MintEnabled)
	assert.False(t, *cfg.MintEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.DerivationSecret)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "arena.toml")

	err := os.WriteFile(path, []byte(`prot = 4000`), 0600)
	require.NoError(t, err)

	_, err = common.LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigWithoutPath(t *testing.T) {
	t.Parallel()

	cfg, err := common.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, common.Config{}, *cfg)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	_, err := common.NewLogger("nope", common.LogFormatJSON, "")
	require.Error(t, err)

	_, err = common.NewLogger("info", "xml", "")
	require.ErrorIs(t, err, common.ErrUnknownLogFormat)

	file := filepath.Join(t.TempDir(), "arena.log")

	loggerService, err := common.NewLogger("info", common.LogFormatJSON, file)
	require.NoError(t, err)

	logger := loggerService.Named("test")
	logger.Info().Msg("hello")
	require.NoError(t, loggerService.Shutdown())

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"component":"test"`)
}

func TestOpenDatabaseCreatesBuckets(t *testing.T) {
	t.Parallel()

	databaseService, err := common.OpenDatabase(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	defer func() {
		_ = databaseService.Shutdown()
	}()

	err = databaseService.DB.View(func(tx *bbolt.Tx) error {
		for _, bucket := range common.Buckets {
			assert.NotNil(t, tx.Bucket([]byte(bucket)), bucket)
		}

		return nil
	})
	require.NoError(t, err)
}

func TestSequenceKeyOrdering(t *testing.T) {
	t.Parallel()

	assert.Less(t, string(common.SequenceKey(9)), string(common.SequenceKey(10)))
	assert.Equal(t, uint64(300), common.KeySequence(common.SequenceKey(300)))
	assert.Equal(t, uint64(42), common.BytesToUint64(common.Uint64ToBytes(42), 0))
	assert.Equal(t, uint64(7), common.BytesToUint64(nil, 7))
}
