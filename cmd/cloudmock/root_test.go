package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmock/internal/config"
	"cloudmock/internal/presets"
)

func TestPresetsCommandListsBuiltins(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"presets", "--json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var list []presets.Descriptor
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.NotEmpty(t, list)
	assert.Equal(t, "baseline:crud", list[0].ID)
	assert.Equal(t, presets.KindBaseline, list[0].Kind)
}

func TestLoadConfigLayersFlagsOverEnv(t *testing.T) {
	t.Setenv("CLOUDMOCK_LOG_LEVEL", "debug")
	t.Setenv("CLOUDMOCK_ADDR", ":7100")
	require.NoError(t, serveCmd.Flags().Set("addr", ":7200"))
	require.NoError(t, serveCmd.Flags().Set("extra", "api:errors,linode-limits"))
	t.Cleanup(func() {
		for _, name := range []string{"addr", "extra"} {
			serveCmd.Flags().Lookup(name).Changed = false
		}
		addr, extras = "", nil
	})

	cfg, err := loadConfig(serveCmd)
	require.NoError(t, err)
	assert.Equal(t, ":7200", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"api:errors", "linode-limits"}, cfg.Preset.Extras)
	assert.Equal(t, 1500*time.Millisecond, cfg.ResponseDelay, "unset flags keep the configured value")
}

func TestBuildServesMockAndAdmin(t *testing.T) {
	cfg := config.Default()
	cfg.VirtualClock = true
	cfg.Preset.Populators = []string{"vpcs:default"}
	log, _ := test.NewNullLogger()

	srv, release, err := build(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(release)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	resp, err := hs.Client().Get(hs.URL + "/v4/vpcs")
	require.NoError(t, err)
	var page struct {
		Results int `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, page.Results)

	resp, err = hs.Client().Get(hs.URL + "/__mock/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
