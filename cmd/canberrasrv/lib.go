package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/generichttp"
	"github.com/lare/gammalab/generichttp/spectro"
	"github.com/lare/gammalab/server/middleware/locker"
	"github.com/lare/gammalab/specrec"
)

// RecorderConfig sets up automatic writing of served spectra
type RecorderConfig struct {
	// Root is the folder dated subfolders are made in.  Empty disables the
	// recorder and its routes.
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix is put in front of the file counter
	Prefix string `yaml:"Prefix" koanf:"Prefix"`
}

// LogConfig controls where the server logs
type LogConfig struct {
	// File is a log file rotated by size.  Empty logs to stderr only.
	File string `yaml:"File" koanf:"File"`

	// MaxSizeMB is the size a log file reaches before it is rotated
	MaxSizeMB int `yaml:"MaxSizeMB" koanf:"MaxSizeMB"`

	// MaxBackups is how many rotated files are kept
	MaxBackups int `yaml:"MaxBackups" koanf:"MaxBackups"`
}

// Config is the server configuration
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Root is the URL stem the detector routes are served under, e.g. /det01
	Root string `yaml:"Root" koanf:"Root"`

	// Source is the detector or spectrum file name as DeviceAccess knows it
	Source string `yaml:"Source" koanf:"Source"`

	// ParamTable is the path to the CAM parameter code table
	ParamTable string `yaml:"ParamTable" koanf:"ParamTable"`

	// ConnectTimeout bounds how long opening the detector is retried, for
	// when another program still holds it at startup
	ConnectTimeout time.Duration `yaml:"ConnectTimeout" koanf:"ConnectTimeout"`

	// Metrics serves prometheus metrics at /metrics
	Metrics bool `yaml:"Metrics" koanf:"Metrics"`

	Recorder RecorderConfig `yaml:"Recorder" koanf:"Recorder"`

	Log LogConfig `yaml:"Log" koanf:"Log"`
}

// DefaultConfig is loaded before the config file
func DefaultConfig() Config {
	return Config{
		Addr:           ":8000",
		Root:           "/canberra",
		Source:         "DET01",
		ParamTable:     "cam-params.yml",
		ConnectTimeout: 30 * time.Second,
		Metrics:        true,
		Recorder:       RecorderConfig{Prefix: "spectrum_"},
		Log:            LogConfig{MaxSizeMB: 10, MaxBackups: 5},
	}
}

// setupLogging points the standard logger, and chi's request logger, at
// stderr and the rotating file if one is configured
func setupLogging(c LogConfig) io.Closer {
	if c.File == "" {
		return io.NopCloser(nil)
	}
	lj := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
	w := io.MultiWriter(os.Stderr, lj)
	log.SetOutput(w)
	middleware.DefaultLogger = middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(w, "", log.LstdFlags),
		NoColor: true,
	})
	return lj
}

// openWithRetry opens d, retrying with exponential backoff for as long as
// the failure is a connection refusal and timeout has not elapsed
func openWithRetry(d *canberra.Detector, timeout time.Duration) error {
	op := func() error {
		err := d.Open()
		if err == nil {
			return nil
		}
		var cerr *canberra.ConnectError
		if errors.As(err, &cerr) {
			log.Printf("%v, retrying\n", err)
			return err
		}
		return backoff.Permanent(err)
	}
	// Retry unwraps permanent errors
	return backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     250 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock})
}

// BuildMux mounts the detector's routes under c.Root with a lock and, if
// configured, the spectrum recorder, and serves metrics at /metrics.
// The mux serves a special route, route-list, under the root which returns
// all of the detector's routes as JSON.
func BuildMux(c Config, d *canberra.Detector) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	var rec *specrec.Recorder
	if c.Recorder.Root != "" {
		rec = specrec.New(c.Recorder.Root, c.Recorder.Prefix)
	}
	httper := spectro.NewHTTPSpectrometer(d, rec)
	lock := locker.New()
	locker.Inject(httper, lock)

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(generichttp.SubMuxSanitize(c.Root), r)

	if c.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(spectro.NewCollector(d, d.Source()))
		root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return root
}
