package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/chartsync/internal/config"
	"github.com/sells-group/chartsync/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"scrape", "sync", "migrate", "serve", "config"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "chartsync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestScrapeCommand_Flags(t *testing.T) {
	flag := scrapeCmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "o", flag.Shorthand)
}

func TestSyncCommand_Flags(t *testing.T) {
	for _, name := range []string{"skip-scrape", "csv", "export", "dry-run", "preview"} {
		assert.NotNil(t, syncCmd.Flags().Lookup(name), "sync should have --%s flag", name)
	}
	assert.Equal(t, "false", syncCmd.Flags().Lookup("skip-scrape").DefValue)
	assert.Equal(t, "20", syncCmd.Flags().Lookup("preview").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestConfigCommand_Redacts(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{
		Supabase: config.SupabaseConfig{URL: "https://abc.supabase.co", ServiceRoleKey: "secret-key"},
		Store:    config.StoreConfig{Driver: "rest", Table: "songs"},
	}

	var buf bytes.Buffer
	configCmd.SetOut(&buf)
	t.Cleanup(func() { configCmd.SetOut(nil) })
	require.NoError(t, configCmd.RunE(configCmd, nil))

	assert.NotContains(t, buf.String(), "secret-key")

	var got config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "https://abc.supabase.co", got.Supabase.URL)
	assert.Equal(t, "****", got.Supabase.ServiceRoleKey)
	assert.Equal(t, "songs", got.Store.Table)
}

func TestAtStage(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, cause, atStage(nil, cause))
	assert.Equal(t, cause, atStage(&model.RunReport{}, cause))

	err := atStage(&model.RunReport{FailedStage: model.StateMap}, cause)
	var se *stageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.StateMap, se.stage)
	assert.ErrorIs(t, err, cause)
}

func TestNewWikiClient(t *testing.T) {
	c := &config.Config{Wiki: config.WikiConfig{APIURL: "https://arcaea.fandom.com/api.php", RequestsPerSecond: 1}}
	assert.NotNil(t, newWikiClient(c))
}
