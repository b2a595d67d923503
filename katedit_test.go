package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"katedit/fixtures"
	"katedit/paths"
	"katedit/types"
)

// write_save puts a fresh PersData.kat in its own temp dir and returns its path.
func write_save(t *testing.T) string {
	filename := filepath.Join(t.TempDir(), "PersData.kat")
	require.NoError(t, os.WriteFile(filename, fixtures.PersDataBytes(), 0644))
	return filename
}

func run(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	err := new_app(out, io.Discard).Run(append([]string{"katedit"}, args...))
	return out.String(), err
}

func get_value(t *testing.T, filename string, path string) any {
	s, _, err := load(filename)
	require.NoError(t, err)
	v, err := paths.New(s).Get(path)
	require.NoError(t, err)
	return v
}

func use_temp_stash(t *testing.T) {
	old := g_stash_filename
	g_stash_filename = filepath.Join(t.TempDir(), "katedit.tmp")
	t.Cleanup(func() { g_stash_filename = old })
}

func TestEdit(t *testing.T) {
	in := write_save(t)
	out := filepath.Join(filepath.Dir(in), "Edited.kat")

	text, err := run(t, "edit", in, out, "--set", "coins=999", "--set", "username = Alice", "--set=inventory.sword=4")
	require.NoError(t, err)
	require.Contains(t, text, "coins set to 999")
	require.Contains(t, text, `["<username>k__BackingField"] set to Alice`)
	require.Contains(t, text, "New file written to "+out)

	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(999)}, get_value(t, out, "coins"))
	require.Equal(t, "Alice", get_value(t, out, "username").(*types.String).Value)
	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(4)}, get_value(t, out, "inventory.sword"))

	// input untouched
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	require.Equal(t, fixtures.PersDataBytes(), data)
}

func TestEditFlagsFirst(t *testing.T) {
	in := write_save(t)
	out := filepath.Join(filepath.Dir(in), "Edited.kat")

	_, err := run(t, "edit", "--set", "diamonds=70", in, out)
	require.NoError(t, err)
	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(70)}, get_value(t, out, "diamonds"))
}

// With nothing to change, what comes out is exactly what went in.
func TestEditNothingIsIdentity(t *testing.T) {
	in := write_save(t)
	out := filepath.Join(filepath.Dir(in), "Same.kat")

	_, err := run(t, "edit", in, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, fixtures.PersDataBytes(), data)
}

func TestEditInPlaceKeepsBackup(t *testing.T) {
	in := write_save(t)

	text, err := run(t, "edit", in, in, "--set", "coins=1")
	require.NoError(t, err)
	backup := filepath.Join(filepath.Dir(in), "PersData.old")
	require.Contains(t, text, "renamed to "+backup)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.Equal(t, fixtures.PersDataBytes(), data)
	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(1)}, get_value(t, in, "coins"))
}

func TestEditErrors(t *testing.T) {
	in := write_save(t)
	out := filepath.Join(filepath.Dir(in), "Edited.kat")

	_, err := run(t, "edit", in, out, "--set", "coins")
	require.EqualError(t, err, "--set must be path=value, got: coins")

	_, err = run(t, "edit", in, out, "--set", "coins=5000000000")
	require.ErrorContains(t, err, "out of range")

	_, err = run(t, "edit", in, out, "--set", "gems=5")
	require.ErrorContains(t, err, "could not be matched")

	_, err = run(t, "edit", in, out, "--set")
	require.Error(t, err)

	_, err = run(t, "edit", in)
	require.ErrorContains(t, err, "INPUT and OUTPUT")

	_, err = run(t, "edit", filepath.Join(filepath.Dir(in), "missing.kat"), out)
	require.ErrorContains(t, err, "loading save")

	// failures write nothing
	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}

func TestEditNotASave(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "junk.kat")
	require.NoError(t, os.WriteFile(in, []byte("definitely not a save"), 0644))

	_, err := run(t, "edit", in, filepath.Join(dir, "out.kat"), "--set", "coins=1")
	require.ErrorContains(t, err, "not a save katedit understands")
}

func TestDump(t *testing.T) {
	in := write_save(t)

	text, err := run(t, "dump", in)
	require.NoError(t, err)
	require.Contains(t, text, `"coins": 150`)
	require.Contains(t, text, `"<username>k__BackingField": "Bob"`)

	text, err = run(t, "dump", "--records", in)
	require.NoError(t, err)
	require.Contains(t, text, "ObjectNullMultiple256 x2")

	text, err = run(t, "dump", in, "--records")
	require.NoError(t, err)
	require.Contains(t, text, "ObjectNullMultiple256 x2")
	require.NotContains(t, text, `"coins"`)

	_, err = run(t, "dump", in, in)
	require.ErrorContains(t, err, "dump takes one INPUT")
}

func TestDumpUsesDir(t *testing.T) {
	in := write_save(t)

	text, err := run(t, "--dir", filepath.Dir(in), "dump")
	require.NoError(t, err)
	require.Contains(t, text, `"coins": 150`)
}

func TestGet(t *testing.T) {
	in := write_save(t)

	text, err := run(t, "get", in, "userSettings.energyCap")
	require.NoError(t, err)
	require.Equal(t, "100\n", text)

	text, err = run(t, "get", in, "inventory")
	require.NoError(t, err)
	require.JSONEq(t, `{"potion": 3, "sword": 1}`, text)

	_, err = run(t, "get", in, "nope")
	require.Error(t, err)
}

// The basic workflow: load, set a few things, save over the original.
func TestLoadSetSave(t *testing.T) {
	use_temp_stash(t)
	in := write_save(t)

	text, err := run(t, "load", in)
	require.NoError(t, err)
	require.Equal(t, "Loaded "+in+"\n", text)

	text, err = run(t, "set", "COINS", "5")
	require.NoError(t, err)
	require.Equal(t, "coins set to 5\n", text)

	_, err = run(t, "set", "inventory.potion", "9")
	require.NoError(t, err)

	// a bad one is refused and not remembered
	_, err = run(t, "set", "diamonds", "lots")
	require.ErrorContains(t, err, "not an integer")

	text, err = run(t, "get", "coins")
	require.NoError(t, err)
	require.Equal(t, "5\n", text)

	data, err := retrieve()
	require.NoError(t, err)
	require.Equal(t, stash_data{
		Filename: in,
		Overrides: []paths.Override{
			{Path: "coins", Value: "5"},
			{Path: "inventory.potion", Value: "9"},
		},
	}, data)

	text, err = run(t, "save")
	require.NoError(t, err)
	require.Contains(t, text, "renamed to "+backup_name(in))
	require.Contains(t, text, "Temporary data cleaned up")

	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(5)}, get_value(t, in, "coins"))
	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(9)}, get_value(t, in, "inventory.potion"))
	old, err := os.ReadFile(backup_name(in))
	require.NoError(t, err)
	require.Equal(t, fixtures.PersDataBytes(), old)

	_, err = os.Stat(g_stash_filename)
	require.True(t, os.IsNotExist(err))
}

func TestSaveElsewhere(t *testing.T) {
	use_temp_stash(t)
	in := write_save(t)
	out := filepath.Join(t.TempDir(), "Copy.kat")

	_, err := run(t, "load", in)
	require.NoError(t, err)
	_, err = run(t, "set", "diamonds", "8")
	require.NoError(t, err)
	_, err = run(t, "save", out)
	require.NoError(t, err)

	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(8)}, get_value(t, out, "diamonds"))
	_, err = os.Stat(backup_name(in))
	require.True(t, os.IsNotExist(err))
}

func TestSetWithoutLoad(t *testing.T) {
	use_temp_stash(t)

	_, err := run(t, "set", "coins", "5")
	require.ErrorContains(t, err, "nothing loaded")
}

func TestConfigOverrides(t *testing.T) {
	in := write_save(t)
	dir := filepath.Dir(in)
	ini := filepath.Join(dir, "katedit.ini")
	require.NoError(t, os.WriteFile(ini, []byte("dir = "+dir+"\n\n[set]\ncoins = 77\ndiamonds = 1\n"), 0644))

	// command line --set comes after the ini file's, so it wins
	_, err := run(t, "--config", ini, "edit", "PersData.kat", "Out.kat", "--set", "diamonds=2")
	require.NoError(t, err)
	out := filepath.Join(dir, "Out.kat")
	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(77)}, get_value(t, out, "coins"))
	require.Equal(t, types.Primitive{Type: types.PT_INT32, Value: int32(2)}, get_value(t, out, "diamonds"))

	_, err = run(t, "--config", filepath.Join(dir, "missing.ini"), "dump", in)
	require.Error(t, err)
}

func TestSplitArgs(t *testing.T) {
	args, sets, err := split_args([]string{"in", "--set", "a=1", "out", "-set=b=2", "--set=c=3"})
	require.NoError(t, err)
	require.Equal(t, []string{"in", "out"}, args)
	require.Equal(t, []string{"a=1", "b=2", "c=3"}, sets)

	_, _, err = split_args([]string{"in", "--set"})
	require.Error(t, err)
}

func TestUpdater(t *testing.T) {
	in := write_save(t)
	apply := updater([]paths.Override{{Path: "coins", Value: "5"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	changed, err := apply(in)
	require.NoError(t, err)
	require.True(t, changed)
	first, err := os.ReadFile(in)
	require.NoError(t, err)

	// already done: nothing to write
	changed, err = apply(in)
	require.NoError(t, err)
	require.False(t, changed)
	second, err := os.ReadFile(in)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func coins_in(filename string) (int32, bool) {
	s, _, err := load(filename)
	if err != nil {
		return 0, false
	}
	v, err := paths.New(s).Get("coins")
	if err != nil {
		return 0, false
	}
	n, ok := v.(types.Primitive).Value.(int32)
	return n, ok
}

// locked_buffer can be written by the command while the test reads it
type locked_buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *locked_buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *locked_buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch(t *testing.T) {
	in := write_save(t)
	dir := filepath.Dir(in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &locked_buffer{}
	done := make(chan error, 1)
	go func() {
		done <- new_app(out, io.Discard).RunContext(ctx, []string{"katedit", "watch", "--settle", "10ms", "--set", "coins=4242", dir})
	}()

	// the save already there gets fixed before watching starts
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Watching")
	}, 5*time.Second, 10*time.Millisecond)
	n, ok := coins_in(in)
	require.True(t, ok)
	require.Equal(t, int32(4242), n)

	// and so does the next one the game writes
	require.NoError(t, os.WriteFile(in, fixtures.PersDataBytes(), 0644))
	require.Eventually(t, func() bool {
		n, ok := coins_in(in)
		return ok && n == 4242
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchNeedsOverrides(t *testing.T) {
	_, err := run(t, "watch", t.TempDir())
	require.ErrorContains(t, err, "nothing to watch for")
}

func TestSaveFailureKeepsOriginal(t *testing.T) {
	in := write_save(t)
	dir := filepath.Dir(in)

	// a class with no values for its members cannot be encoded
	broken := fixtures.PersData()
	broken.Records[1].(*types.Class).Values = nil
	newname, err := save(in, broken, true)
	require.Error(t, err)
	require.Empty(t, newname)

	data, err := os.ReadFile(in)
	require.NoError(t, err)
	require.Equal(t, fixtures.PersDataBytes(), data)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// nowhere to put the finished file: the temporary one is cleaned up
	blocked := filepath.Join(dir, "Blocked.kat")
	require.NoError(t, os.Mkdir(blocked, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(blocked, "inside"), nil, 0644))
	_, err = save(blocked, fixtures.PersData(), false)
	require.Error(t, err)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSaveKeepsMode(t *testing.T) {
	in := write_save(t)
	require.NoError(t, os.Chmod(in, 0600))

	newname, err := save(in, fixtures.PersData(), true)
	require.NoError(t, err)
	require.Equal(t, strings.TrimSuffix(in, ".kat")+".old", newname)

	info, err := os.Stat(in)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	require.Equal(t, fixtures.PersDataBytes(), data)
}
