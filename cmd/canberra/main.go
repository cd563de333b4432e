package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"github.com/theckman/yacspin"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/deviceaccess"
)

// isTerminal is true when f is a character device, i.e. not redirected
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// spinner shows acquisition progress on a terminal.  stop must be called
// once the count has ended.
func spinner() (report func(canberra.Progress), stop func(ok bool), err error) {
	s, err := yacspin.New(yacspin.Config{
		Frequency:         250 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " counting",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopMessage:       "done",
		StopFailCharacter: "✗",
		StopFailMessage:   "stopped",
	})
	if err != nil {
		return nil, nil, err
	}
	if err = s.Start(); err != nil {
		return nil, nil, err
	}
	bar := &canberra.Bar{}
	report = func(p canberra.Progress) {
		// Render leads with \r for plain terminals, yacspin redraws the line itself
		s.Message(bar.Render(p)[1:])
	}
	stop = func(ok bool) {
		if ok {
			s.Stop()
		} else {
			s.StopFail()
		}
	}
	return report, stop, nil
}

func main() {
	log.SetFlags(0)
	c, args, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal(err)
	}
	if len(args) == 0 {
		fmt.Println(usage)
		return
	}
	if !needsDevice(args[0]) {
		if err := offline(c, args, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	table, err := canberra.LoadParamTable(c.Table)
	if err != nil {
		log.Fatal(err)
	}
	auto, err := deviceaccess.Dial()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var display progressDisplay
	if isTerminal(os.Stdout) {
		display = spinner
	}
	err = canberra.Session(auto, table, c.Source, func(d *canberra.Detector) error {
		return runDevice(ctx, d, c, args, os.Stdout, display)
	})
	auto.Release()
	if err != nil {
		var cerr *canberra.ConnectError
		if errors.As(err, &cerr) && cerr.Diagnostic != "" {
			log.Println(cerr.Diagnostic)
		}
		log.Fatal(err)
	}
}
