package utils

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write_ini(t *testing.T, text string) string {
	filename := filepath.Join(t.TempDir(), INI_FILENAME)
	require.NoError(t, os.WriteFile(filename, []byte(text), 0644))
	return filename
}

func TestLoadConfig(t *testing.T) {
	filename := write_ini(t, `
dir = /games/textgame
log_level = debug

[set]
coins = 99999
userSettings.energyCap = 500
username = "Bob Smith"
`)
	c, err := Load_config(filename, true)
	require.NoError(t, err)
	require.Equal(t, "/games/textgame", c.Dir)
	require.Equal(t, DEFAULT_FILE, c.File)
	require.Equal(t, slog.LevelDebug, c.LogLevel)
	require.Equal(t, []string{"coins=99999", "userSettings.energyCap=500", "username=Bob Smith"}, c.Overrides)
}

func TestLoadConfigMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.ini")

	c, err := Load_config(missing, false)
	require.NoError(t, err)
	require.Equal(t, &Config{File: DEFAULT_FILE, LogLevel: slog.LevelInfo}, c)

	_, err = Load_config(missing, true)
	require.Error(t, err)
}

func TestLoadConfigBadLevel(t *testing.T) {
	_, err := Load_config(write_ini(t, "log_level = chatty\n"), true)
	require.ErrorContains(t, err, "unknown log_level")
}

func TestSavePath(t *testing.T) {
	c := &Config{Dir: "/from/ini", File: "Other.kat"}

	require.Equal(t, "/from/flag", c.Get_dir("/from/flag"))
	require.Equal(t, "/from/ini", c.Get_dir(""))
	require.Equal(t, filepath.Join("/from/ini", "Other.kat"), c.Save_path("", ""))
	require.Equal(t, filepath.Join("/from/flag", "PersData.kat"), c.Save_path("/from/flag", "PersData.kat"))
	require.Equal(t, "./PersData.kat", c.Save_path("/from/flag", "./PersData.kat"))
	require.Equal(t, "/abs/PersData.kat", c.Save_path("", "/abs/PersData.kat"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, wd, (&Config{}).Get_dir(""))
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	New_logger(buf, slog.LevelInfo, false).Debug("hidden")
	require.Empty(t, buf.String())

	New_logger(buf, slog.LevelInfo, true).Debug("shown", "path", "coins")
	require.Contains(t, buf.String(), "msg=shown path=coins")
}
