package main

// save file dumper/editor for PersData.kat
//
// example usage:
//
// katedit dump PersData.kat
// katedit edit PersData.kat Edited.kat --set coins=99999 --set diamonds=500
// katedit get PersData.kat userSettings.energyCap
//
// or, a step at a time:
//
// katedit load PersData.kat
// katedit set coins 99999
// katedit set username '"Bob"'
// katedit save
//
// or, to keep a running game topped up:
//
// katedit watch --set coins=99999
//
// save file location is read from the ini file (katedit.ini) if not given

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"katedit/dump"
	"katedit/paths"
	"katedit/utils"
	"katedit/watch"
)

func main() {
	err := main2(os.Args, os.Stdout)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main2(args []string, out io.Writer) error {
	return new_app(out, os.Stderr).RunContext(context.Background(), args)
}

// session is what every command gets: config, logger, and where to print results.
type session struct {
	out    io.Writer
	logw   io.Writer
	config *utils.Config
	log    *slog.Logger
	dir    string // --dir
}

func new_app(out io.Writer, logw io.Writer) *cli.App {
	s := &session{out: out, logw: logw}

	set_flag := func() cli.Flag {
		return &cli.StringSliceFlag{
			Name:  "set",
			Usage: "override `PATH=VALUE` (repeatable)",
		}
	}

	return &cli.App{
		Name:                      "katedit",
		Usage:                     "dump and edit PersData.kat saves",
		Writer:                    out,
		ErrWriter:                 logw,
		HideHelpCommand:           true,
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "dir", Usage: "save directory (default: from " + utils.INI_FILENAME + ", then the current directory)"},
			&cli.PathFlag{Name: "config", Value: utils.INI_FILENAME, Usage: "ini file"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log more"},
		},
		Before: s.before,
		Commands: []*cli.Command{
			{
				Name:      "dump",
				Usage:     "print the whole save as JSON",
				ArgsUsage: "[INPUT]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "records", Usage: "list the raw records instead"},
				},
				Action: s.dump,
			},
			{
				Name:      "edit",
				Usage:     "apply overrides to INPUT and write OUTPUT",
				ArgsUsage: "INPUT OUTPUT",
				Flags:     []cli.Flag{set_flag()},
				Action:    s.edit,
			},
			{
				Name:      "get",
				Usage:     "print one value as JSON",
				ArgsUsage: "[INPUT] PATH",
				Action:    s.get,
			},
			{
				Name:      "load",
				Usage:     "start editing a save",
				ArgsUsage: "[FILE]",
				Action:    s.load,
			},
			{
				Name:      "set",
				Usage:     "change a value in the loaded save",
				ArgsUsage: "PATH VALUE",
				Action:    s.set,
			},
			{
				Name:      "save",
				Usage:     "write the loaded save with all changes (over the original, which is kept as .old)",
				ArgsUsage: "[OUTPUT]",
				Action:    s.save,
			},
			{
				Name:      "watch",
				Usage:     "re-apply overrides whenever the game writes its save",
				ArgsUsage: "[DIR]",
				Flags: []cli.Flag{
					set_flag(),
					&cli.DurationFlag{Name: "settle", Value: 2 * time.Second, Usage: "wait this long after the game writes"},
				},
				Action: s.watch,
			},
		},
	}
}

func (s *session) before(c *cli.Context) error {
	config, err := utils.Load_config(c.Path("config"), c.IsSet("config"))
	if err != nil {
		return err
	}
	s.config = config
	s.dir = c.Path("dir")
	s.log = utils.New_logger(s.logw, config.LogLevel, c.Bool("verbose"))
	return nil
}

// split_args separates positional arguments from --set flags that came after them.
// The flag parser stops at the first positional argument, but "edit IN OUT --set x=1"
// is the natural way to type it.
func split_args(args []string) ([]string, []string, error) {
	positional, sets := []string{}, []string{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--set" || a == "-set":
			if i+1 >= len(args) {
				return nil, nil, errors.New("--set needs a PATH=VALUE")
			}
			i++
			sets = append(sets, args[i])
		case strings.HasPrefix(a, "--set="):
			sets = append(sets, strings.TrimPrefix(a, "--set="))
		case strings.HasPrefix(a, "-set="):
			sets = append(sets, strings.TrimPrefix(a, "-set="))
		default:
			positional = append(positional, a)
		}
	}
	return positional, sets, nil
}

// overrides gathers the ini file's [set] section followed by the command line's --sets,
// and returns the remaining positional arguments.
func (s *session) overrides(c *cli.Context) ([]string, []paths.Override, error) {
	args, late, err := split_args(c.Args().Slice())
	if err != nil {
		return nil, nil, err
	}
	raw := append([]string{}, s.config.Overrides...)
	raw = append(raw, c.StringSlice("set")...)
	raw = append(raw, late...)
	overrides, err := paths.ParseOverrides(raw)
	return args, overrides, err
}

// bool_after takes a boolean flag that came after the positional arguments out of args.
func bool_after(args []string, name string) ([]string, bool) {
	out, seen := []string{}, false
	for _, a := range args {
		if a == "--"+name || a == "-"+name {
			seen = true
			continue
		}
		out = append(out, a)
	}
	return out, seen
}

func (s *session) dump(c *cli.Context) error {
	args, records := bool_after(c.Args().Slice(), "records")
	if len(args) > 1 {
		return errors.Errorf("dump takes one INPUT, got: %v", strings.Join(args, " "))
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	filename := s.config.Save_path(s.dir, name)
	stream, _, err := load(filename)
	if err != nil {
		return err
	}
	if records || c.Bool("records") {
		for _, line := range dump.Records(stream) {
			fmt.Fprintln(s.out, line)
		}
		return nil
	}
	return dump.Stream(s.out, stream)
}

func (s *session) edit(c *cli.Context) error {
	args, overrides, err := s.overrides(c)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return errors.New("edit needs INPUT and OUTPUT")
	}
	in := s.config.Save_path(s.dir, args[0])
	out := s.config.Save_path(s.dir, args[1])

	stream, _, err := load(in)
	if err != nil {
		return err
	}
	done, err := apply_overrides(stream, overrides, s.log)
	if err != nil {
		return err
	}
	for i, where := range done {
		fmt.Fprintln(s.out, where, "set to", overrides[i].Value)
	}

	newname, err := save(out, stream, same_file(in, out))
	if newname != "" {
		fmt.Fprintln(s.out, in, "renamed to", newname)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "New file written to", out)
	return nil
}

func (s *session) get(c *cli.Context) error {
	var (
		what      string
		filename  string
		overrides []paths.Override
	)
	switch c.NArg() {
	case 1:
		// Get from whatever is loaded, with the changes so far
		data, err := retrieve()
		if err != nil {
			return err
		}
		what, filename, overrides = c.Args().Get(0), data.Filename, data.Overrides
	case 2:
		what, filename = c.Args().Get(1), s.config.Save_path(s.dir, c.Args().Get(0))
	default:
		return errors.New("Get what?  PATH expected.")
	}

	stream, _, err := load(filename)
	if err != nil {
		return err
	}
	editor := paths.New(stream)
	if _, err := editor.Apply(overrides); err != nil {
		return err
	}
	v, err := editor.Get(what)
	if err != nil {
		return err
	}
	return dump.Write(s.out, editor.Index(), v)
}

func (s *session) load(c *cli.Context) error {
	filename := s.config.Save_path(s.dir, c.Args().First())
	if _, _, err := load(filename); err != nil {
		return err
	}
	if err := stash(stash_data{Filename: filename}); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Loaded", filename)
	return nil
}

func (s *session) set(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("Set what to what?  PATH and VALUE expected.")
	}
	data, err := retrieve()
	if err != nil {
		return err
	}
	stream, _, err := load(data.Filename)
	if err != nil {
		return err
	}

	// Replay what is already set, so the new one is checked against the save as it will be
	editor := paths.New(stream)
	if _, err := editor.Apply(data.Overrides); err != nil {
		return err
	}
	o := paths.Override{Path: c.Args().Get(0), Value: c.Args().Get(1)}
	where, err := editor.Set(o.Path, o.Value)
	if err != nil {
		return err
	}

	data.Overrides = append(data.Overrides, paths.Override{Path: where, Value: o.Value})
	if err := stash(data); err != nil {
		return err
	}
	fmt.Fprintln(s.out, where, "set to", o.Value)
	return nil
}

func (s *session) save(c *cli.Context) error {
	data, err := retrieve()
	if err != nil {
		return err
	}
	stream, _, err := load(data.Filename)
	if err != nil {
		return err
	}
	if _, err := apply_overrides(stream, data.Overrides, s.log); err != nil {
		return err
	}

	out := data.Filename
	if c.NArg() > 0 {
		out = s.config.Save_path(s.dir, c.Args().First())
	}
	newname, err := save(out, stream, same_file(out, data.Filename))
	if newname != "" {
		fmt.Fprintln(s.out, data.Filename, "renamed to", newname)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "New file written to", out)

	if err := clear_stash(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Temporary data cleaned up")
	return nil
}

// updater makes the function the watcher calls: bring the save at path up to date with
// the overrides, and leave it alone if it already is.  Leaving it alone matters, because
// our own write wakes the watcher up again.
func updater(overrides []paths.Override, log *slog.Logger) watch.Apply_func {
	return func(path string) (bool, error) {
		stream, before, err := load(path)
		if err != nil {
			return false, err
		}
		if _, err := apply_overrides(stream, overrides, log); err != nil {
			return false, err
		}
		after, err := encode(stream)
		if err != nil {
			return false, err
		}
		if bytes.Equal(before, after) {
			return false, nil
		}
		_, err = write_file(path, after, false)
		return true, errors.WithMessage(err, "updating save")
	}
}

func (s *session) watch(c *cli.Context) error {
	args, overrides, err := s.overrides(c)
	if err != nil {
		return err
	}
	if len(overrides) == 0 {
		return errors.New("nothing to watch for: no --set given and no [set] section in " + utils.INI_FILENAME)
	}

	dir := s.config.Get_dir(s.dir)
	if len(args) > 0 {
		dir = args[0]
	}
	apply := updater(overrides, s.log)

	// The save may already be there from the last session
	path := s.config.Save_path(dir, "")
	if _, err := os.Stat(path); err == nil {
		changed, err := apply(path)
		if err != nil {
			return err
		}
		s.log.Info("checked existing save", "file", path, "changed", changed)
	}

	watcher := watch.New_watcher(dir, s.config.File, c.Duration("settle"), apply, s.log)
	if err := watcher.Start_watching(); err != nil {
		return err
	}
	defer watcher.Stop_watching()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	fmt.Fprintln(s.out, "Watching", dir, "- press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}
