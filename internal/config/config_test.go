package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Valid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "public.table_log", cfg.Table)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Duration(-1), cfg.LogMinDuration)
	assert.False(t, cfg.Enable)
	assert.False(t, cfg.CreateTable)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TABLE_LOG_ENABLE", "on")
	t.Setenv("TABLE_LOG_TABLE", "audit.durations")
	t.Setenv("TIMEZONE", "Europe/Madrid")
	t.Setenv("WRITE_TIMEOUT", "250ms")
	t.Setenv("LOG_MIN_DURATION", "100")
	t.Setenv("SETTINGS_FILE", "/etc/tablelog.yaml")
	t.Setenv("CSVLOG_FILE", "/var/log/postgresql/postgresql.csv")
	t.Setenv("CREATE_TABLE", "true")
	t.Setenv("REJECT_LOG", "/tmp/rejects.jsonl")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.Enable)
	assert.Equal(t, "audit.durations", cfg.Table)
	assert.Equal(t, "Europe/Madrid", cfg.Timezone)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.LogMinDuration)
	assert.Equal(t, "/etc/tablelog.yaml", cfg.SettingsFile)
	assert.Equal(t, "/var/log/postgresql/postgresql.csv", cfg.CSVLogFile)
	assert.True(t, cfg.CreateTable)
	assert.Equal(t, "/tmp/rejects.jsonl", cfg.RejectLog)
}

func TestLoad_OverridesWinOverEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/test")
	t.Setenv("TABLE_LOG_TABLE", "env_table")
	t.Setenv("TABLE_LOG_ENABLE", "on")

	url := "postgres://flag/test"
	table := "flag_table"
	enable := false
	minDur := 0 * time.Millisecond

	cfg, err := Load(Overrides{
		DatabaseURL:    &url,
		Table:          &table,
		Enable:         &enable,
		LogMinDuration: &minDur,
		CreateTable:    true,
		RejectLog:      "/tmp/r.jsonl",
	})
	require.NoError(t, err)

	assert.Equal(t, url, cfg.DatabaseURL)
	assert.Equal(t, table, cfg.Table)
	assert.False(t, cfg.Enable)
	assert.Equal(t, time.Duration(0), cfg.LogMinDuration)
	assert.True(t, cfg.CreateTable)
	assert.Equal(t, "/tmp/r.jsonl", cfg.RejectLog)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		value   string
		wantErr string
	}{
		{"write timeout", "WRITE_TIMEOUT", "not-a-duration", "WRITE_TIMEOUT"},
		{"log level", "LOG_LEVEL", "invalid", "LOG_LEVEL"},
		{"enable", "TABLE_LOG_ENABLE", "maybe", "TABLE_LOG_ENABLE"},
		{"min duration", "LOG_MIN_DURATION", "soon", "LOG_MIN_DURATION"},
		{"create table", "CREATE_TABLE", "nope", "CREATE_TABLE"},
		{"otel", "OTEL_ENABLED", "nope", "OTEL_ENABLED"},
		{"pool max", "POOL_MAX_CONNS", "0", "POOL_MAX_CONNS"},
		{"pool min", "POOL_MIN_CONNS", "-1", "POOL_MIN_CONNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/test")
			t.Setenv(tt.env, tt.value)

			_, err := Load(Overrides{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_PoolMinExceedsMax(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("POOL_MAX_CONNS", "2")
	t.Setenv("POOL_MIN_CONNS", "3")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POOL_MIN_CONNS")
}

func TestLoad_EmptyTableOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	empty := " "

	_, err := Load(Overrides{Table: &empty})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TABLE_LOG_TABLE")
}

func TestParseMinDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"-1", -1, false},
		{"0", 0, false},
		{"250", 250 * time.Millisecond, false},
		{"1.5s", 1500 * time.Millisecond, false},
		{"-5s", -1, false},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMinDuration(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSwitch(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "OFF": false, "true": true, "0": false} {
		got, err := parseSwitch(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
