package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/haystack/internal/config"
)

// TestParseCLI はコマンドライン引数の解析を検証する。
func TestParseCLI(t *testing.T) {
	t.Run("フラグが設定に反映されること", func(t *testing.T) {
		cli, err := parseCLI([]string{
			"--port", "9000",
			"--store", "static",
			"--token", "xyz",
			"--strict-token-match",
			"--log-level", "debug",
			"--log-format", "console",
		})
		require.NoError(t, err)

		cfg := config.Default()
		cli.apply(cfg)

		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, config.StoreStatic, cfg.Store.Kind)
		assert.Equal(t, "xyz", cfg.Store.Token)
		assert.True(t, cfg.StrictTokenMatch)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "console", cfg.Log.Format)
	})

	t.Run("指定の無いフラグは設定を変更しないこと", func(t *testing.T) {
		cli, err := parseCLI(nil)
		require.NoError(t, err)

		cfg := config.Default()
		cli.apply(cfg)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("未知のフラグはエラーになること", func(t *testing.T) {
		_, err := parseCLI([]string{"--listen", ":80"})
		assert.Error(t, err)
	})

	t.Run("環境変数でもフラグを指定できること", func(t *testing.T) {
		t.Setenv("HAYSTACK_PORT", "9100")

		cli, err := parseCLI(nil)
		require.NoError(t, err)
		assert.Equal(t, "9100", cli.Port)
	})
}

// TestLoadConfig は設定ファイルとフラグの優先順位を検証する。
func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "haystack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nstore:\n  kind: static\n  token: from-file\n"), 0o600))

	cli, err := parseCLI([]string{"--config", path, "--token", "from-flag"})
	require.NoError(t, err)

	cfg, err := cli.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "from-flag", cfg.Store.Token)

	for _, args := range [][]string{{"--store", "redis"}, {"--store", "ldap"}, {"--log-format", "xml"}} {
		cli, err = parseCLI(args)
		require.NoError(t, err)
		_, err = cli.loadConfig()
		assert.Error(t, err, args)
	}
}
