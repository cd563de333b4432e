package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/deviceaccess"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "canberrasrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `canberrasrv exposes a Canberra spectroscopy detector over HTTP.
It holds the detector open for as long as it runs, so Genie 2000 and other
programs cannot use it at the same time.

Usage:
	canberrasrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `canberrasrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Keys:
	Addr           address to listen at, ":8000"
	Root           URL stem for the detector routes, "/canberra"
	Source         detector name as configured in the MID editor, or a .cnf file
	ParamTable     path to the CAM parameter code table
	ConnectTimeout how long to retry opening a busy detector, e.g. "30s"
	Metrics        serve prometheus metrics at /metrics
	Recorder       Root and Prefix for automatic FITS writing of served spectra
	Log            File, MaxSizeMB, MaxBackups for a rotating log file

Routes, relative to Root:
	GET  /status, /progress, /spectrum?left=&right=&fmt=json|fits
	GET  /param/{name}      POST /param/{name} {"f64": x} | {"int": n} | {"str": s}
	POST /acquire {"liveTime": s, "clear": true}, /stop, /clear
	GET  /calibration, /energy-to-channel?e=, /channel-to-energy?ch=
	POST /high-voltage {"bool": b}, /save {"filename": f, "overwrite": b}
	GET  /params, /route-list, /lock    POST /lock {"bool": b}

This program only runs on Windows with the Genie 2000 runtime installed.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("canberrasrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	lf := setupLogging(c.Log)
	defer lf.Close()

	table, err := canberra.LoadParamTable(c.ParamTable)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("loaded %d parameter codes from %s (version %q)\n", table.Len(), c.ParamTable, table.Version())

	auto, err := deviceaccess.Dial()
	if err != nil {
		log.Fatal(err)
	}
	defer auto.Release()

	d := canberra.New(auto, table, c.Source)
	err = openWithRetry(d, c.ConnectTimeout)
	if err != nil {
		log.Println(err)
		return
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("closing %s: %v\n", c.Source, err)
		}
	}()
	cal, _ := d.Calibration()
	log.Printf("opened %s, calibration %.6g keV/ch + %.6g keV\n", c.Source, cal.Slope, cal.Intercept)

	srv := &http.Server{Addr: c.Addr, Handler: BuildMux(c, d)}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		log.Println("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Println("now listening for requests at ", c.Addr)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// in-flight requests still hold the detector
		<-drained
		return
	}
	log.Println(err)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
