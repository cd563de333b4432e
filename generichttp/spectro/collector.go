package spectro

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lare/gammalab/canberra"
)

// Collector is a prometheus.Collector that samples a Spectrometer when
// scraped.  Scrapes take the detector's lock briefly, like any other client.
type Collector struct {
	s Spectrometer

	up       *prometheus.Desc
	status   *prometheus.Desc
	elapsed  *prometheus.Desc
	preset   *prometheus.Desc
	counts   *prometheus.Desc
	channels *prometheus.Desc
}

// NewCollector returns a collector whose metrics carry a source label
func NewCollector(s Spectrometer, source string) *Collector {
	labels := prometheus.Labels{"source": source}
	return &Collector{
		s:        s,
		up:       prometheus.NewDesc("canberra_up", "1 if the detector answered the last scrape", nil, labels),
		status:   prometheus.NewDesc("canberra_analyzer_status", "raw DeviceAccess analyzer status code", []string{"state"}, labels),
		elapsed:  prometheus.NewDesc("canberra_live_time_elapsed_seconds", "elapsed live time of the current count", nil, labels),
		preset:   prometheus.NewDesc("canberra_live_time_preset_seconds", "live time preset of the current count", nil, labels),
		counts:   prometheus.NewDesc("canberra_spectrum_counts", "sum of counts in the whole spectrum", nil, labels),
		channels: prometheus.NewDesc("canberra_spectrum_channels", "number of channels in the spectrum", nil, labels),
	}
}

// Describe satisfies prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.status
	ch <- c.elapsed
	ch <- c.preset
	ch <- c.counts
	ch <- c.channels
}

// Collect satisfies prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st, err := c.s.Status()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, float64(st), st.String())
	if p, err := c.s.LiveTime(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.elapsed, prometheus.GaugeValue, p.Elapsed)
		ch <- prometheus.MustNewConstMetric(c.preset, prometheus.GaugeValue, p.Preset)
	}
	if spec, err := c.s.Spectrum(canberra.FirstChannel, canberra.LastChannel); err == nil {
		ch <- prometheus.MustNewConstMetric(c.counts, prometheus.GaugeValue, float64(spec.Total()))
		ch <- prometheus.MustNewConstMetric(c.channels, prometheus.GaugeValue, float64(spec.Channels()))
	}
}
