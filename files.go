package main

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"katedit/paths"
	"katedit/readers"
	"katedit/types"
	"katedit/writers"
)

// Evil global variables
var g_stash_filename = "katedit.tmp"

func load(full_filename string) (*types.Stream, []byte, error) {
	data, err := os.ReadFile(full_filename)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading save")
	}
	s, err := readers.ReadStream(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "%v is not a save katedit understands", full_filename)
	}
	return s, data, nil
}

func encode(s *types.Stream) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writers.WriteStream(buf, s); err != nil {
		return nil, errors.WithMessage(err, "encoding save")
	}
	return buf.Bytes(), nil
}

// save writes s to filename.  The bytes go to a temporary file next to it first, and
// only replace filename once they are all on disk, so a failure leaves filename as it was.
// With keep_old, whatever was at filename is renamed to its backup name, and that name
// is returned.
func save(filename string, s *types.Stream, keep_old bool) (string, error) {
	data, err := encode(s)
	if err != nil {
		return "", err
	}
	return write_file(filename, data, keep_old)
}

func write_file(filename string, data []byte, keep_old bool) (string, error) {
	mode := os.FileMode(0644)
	if info, err := os.Stat(filename); err == nil {
		mode = info.Mode().Perm()
	}

	f, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*")
	if err != nil {
		return "", errors.Wrap(err, "saving")
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(mode)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, "writing %v", filename)
	}

	old := ""
	if keep_old {
		// Back up the old file
		// This is a tool capable of completely trashing savefiles, so that's probably a good idea
		old = backup_name(filename)
		if err := os.Rename(filename, old); err != nil {
			return "", errors.Wrap(err, "backing up save")
		}
	}
	if err := os.Rename(tmp, filename); err != nil {
		return old, errors.Wrapf(err, "writing %v", filename)
	}
	return old, nil
}

// backup_name is where the original goes before we save over it: PersData.kat -> PersData.old
func backup_name(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".old"
}

func same_file(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}

// apply_overrides runs the overrides against s and reports what happened.
func apply_overrides(s *types.Stream, overrides []paths.Override, log *slog.Logger) ([]string, error) {
	done, err := paths.New(s).Apply(overrides)
	for i, where := range done {
		log.Debug("override applied", "path", where, "value", overrides[i].Value)
	}
	return done, err
}

// The stash is what "load" and "set" leave behind for "save": which file, and what to do to it.
// Edits are kept as overrides rather than as a modified stream, so the save is
// re-read (and the overrides re-checked) every time.
type stash_data struct {
	Filename  string
	Overrides []paths.Override
}

func stash(data stash_data) error {
	f, err := os.Create(g_stash_filename)
	if err != nil {
		return errors.Wrap(err, "writing stash")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(data); err != nil {
		return errors.Wrap(err, "writing stash")
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "writing stash")
	}
	return errors.Wrap(f.Sync(), "writing stash")
}

func retrieve() (stash_data, error) {
	data := stash_data{}
	f, err := os.Open(g_stash_filename)
	if os.IsNotExist(err) {
		return data, errors.New("nothing loaded (use \"katedit load FILE\" first)")
	}
	if err != nil {
		return data, errors.Wrap(err, "reading stash")
	}
	defer f.Close()

	decoder := gob.NewDecoder(bufio.NewReader(f))
	if err := decoder.Decode(&data); err != nil {
		return data, errors.Wrap(err, "reading stash")
	}
	return data, nil
}

func clear_stash() error {
	return errors.Wrap(os.Remove(g_stash_filename), "removing stash")
}
