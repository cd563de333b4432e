package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/util"
)

// Config is the merged result of defaults, canberra.yml and flags
type Config struct {
	Source    string        `koanf:"source"`
	Table     string        `koanf:"table"`
	Live      float64       `koanf:"live"`
	Clear     bool          `koanf:"clear"`
	Out       string        `koanf:"out"`
	Overwrite bool          `koanf:"overwrite"`
	Interval  time.Duration `koanf:"interval"`
}

// DefaultConfig is overridden by the config file, then by flags
func DefaultConfig() Config {
	return Config{
		Source:   "DET01",
		Table:    "cam-params.yml",
		Clear:    true,
		Interval: canberra.DefaultPollInterval,
	}
}

var errUsage = errors.New("usage")

// parseArgs builds the flag set, loads configuration in order of precedence
// and returns the positional arguments
func parseArgs(args []string, stderr io.Writer) (Config, []string, error) {
	fs := pflag.NewFlagSet("canberra", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	def := DefaultConfig()
	fs.StringP("config", "c", "canberra.yml", "configuration file, ignored if missing")
	fs.StringP("source", "s", def.Source, "detector name or spectrum file")
	fs.StringP("table", "t", def.Table, "CAM parameter code table")
	fs.Float64P("live", "l", def.Live, "live time preset in seconds for acquire")
	fs.Bool("clear", def.Clear, "clear the spectrum before acquiring")
	fs.StringP("out", "o", def.Out, "write the spectrum to this FITS file")
	fs.Bool("overwrite", def.Overwrite, "let save replace an existing file")
	fs.Duration("interval", def.Interval, "progress poll interval")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	k := koanf.New(".")
	k.Load(structs.Provider(def, "koanf"), nil)
	cfgfile, _ := fs.GetString("config")
	if err := k.Load(file.Provider(cfgfile), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !strings.Contains(err.Error(), "no such") {
			return Config{}, nil, fmt.Errorf("error loading config: %w", err)
		}
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return Config{}, nil, err
	}
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, nil, err
	}
	return c, fs.Args(), nil
}

const usage = `canberra operates a Canberra spectroscopy detector through DeviceAccess

Usage:
	canberra [flags] <command> [args]

Commands:
	status                 print the analyzer state
	get NAME               read a CAM parameter
	set NAME VALUE         write a CAM parameter
	acquire --live S       count to a live time preset and wait, --out to save a FITS file
	stop                   pause the count
	clear                  zero the spectrum
	spectrum               print the spectrum as JSON, or --out FILE for FITS
	save FILE              save in the vendor's format, --overwrite to replace
	hv on|off              switch the detector bias
	params                 list the parameter names in the table
	errtext CODE           explain a status code

Flags:`

// needsDevice is false for commands answered without opening the detector
func needsDevice(cmd string) bool {
	switch cmd {
	case "errtext", "params", "help":
		return false
	}
	return true
}

// parseValue turns a command line value into the narrowest type the
// automation object accepts: a 32-bit integer, a float, or a string
func parseValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// offline runs the commands that need no detector
func offline(c Config, args []string, out io.Writer) error {
	switch args[0] {
	case "errtext":
		if len(args) != 2 {
			return errUsage
		}
		code, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, canberra.ErrorText(code))
	case "params":
		table, err := canberra.LoadParamTable(c.Table)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# %s, version %q\n", c.Table, table.Version())
		for _, n := range table.Names() {
			fmt.Fprintln(out, n)
		}
	case "help":
		fmt.Fprintln(out, usage)
	}
	return nil
}

// execute runs one device command against an open detector.  report
// receives acquisition progress and may be nil.
func execute(ctx context.Context, d *canberra.Detector, c Config, args []string, out io.Writer, report func(canberra.Progress)) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	want := map[string]int{
		"status": 0, "get": 1, "set": 2, "acquire": 0, "stop": 0,
		"clear": 0, "spectrum": 0, "save": 1, "hv": 1,
	}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s): %w", cmd, n, errUsage)
	}
	switch cmd {
	case "status":
		st, err := d.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d %s\n", int(st), st)
	case "get":
		v, err := d.Param(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
	case "set":
		return d.SetParam(args[0], parseValue(args[1]))
	case "acquire":
		if c.Live <= 0 {
			return fmt.Errorf("acquire needs --live > 0: %w", errUsage)
		}
		_, err := d.Acquire(ctx, util.SecsToDuration(c.Live), c.Clear, c.Interval, report)
		if err != nil {
			return err
		}
		if c.Out != "" {
			return writeSpectrum(d, c.Out)
		}
	case "stop":
		return d.StopAcquisition()
	case "clear":
		return d.Clear()
	case "spectrum":
		if c.Out != "" {
			return writeSpectrum(d, c.Out)
		}
		s, err := d.FullSpectrum()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "save":
		return d.Save(args[0], c.Overwrite)
	case "hv":
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return d.SetHighVoltage(on)
	}
	return nil
}

// progressDisplay starts a live progress display for acquire.  stop is
// called once when the count ends.
type progressDisplay func() (report func(canberra.Progress), stop func(ok bool), err error)

// runDevice is the body of a detector session.  The display, if any, is
// started only once the detector is open, and a cancelled count is stopped
// in hardware, where it would otherwise carry on.
func runDevice(ctx context.Context, d *canberra.Detector, c Config, args []string, out io.Writer, display progressDisplay) error {
	report := canberra.TextReporter(out)
	stop := func(bool) {}
	if display != nil && len(args) > 0 && args[0] == "acquire" {
		if r, s, err := display(); err == nil {
			report, stop = r, s
		}
	}
	err := execute(ctx, d, c, args, out, report)
	stop(err == nil)
	if errors.Is(err, context.Canceled) {
		if serr := d.StopAcquisition(); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

// writeSpectrum reads the whole spectrum and writes it to a new FITS file
func writeSpectrum(d *canberra.Detector, fn string) (err error) {
	s, err := d.FullSpectrum()
	if err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return canberra.WriteFITS(f, s)
}
