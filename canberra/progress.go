package canberra

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/lare/gammalab/util"
	"golang.org/x/time/rate"
)

const (
	// DefaultPollInterval is the cadence of the progress loop
	DefaultPollInterval = time.Second

	// DefaultBarWidth is the number of characters in a full progress bar
	DefaultBarWidth = 20
)

// Progress is one sample of a live time limited count, in seconds
type Progress struct {
	Elapsed float64 `json:"elapsed"`
	Preset  float64 `json:"preset"`
}

// Done is true once the elapsed live time has reached the preset
func (p Progress) Done() bool {
	return p.Elapsed >= p.Preset
}

// Fraction is Elapsed/Preset clamped to [0,1].  A count with no preset is
// reported complete.
func (p Progress) Fraction() float64 {
	if p.Preset <= 0 {
		return 1
	}
	return util.Clamp(p.Elapsed/p.Preset, 0, 1)
}

// Percent is the truncated percentage complete
func (p Progress) Percent() int {
	return int(math.Floor(p.Fraction() * 100))
}

// Remaining is the live time left in seconds, never negative
func (p Progress) Remaining() float64 {
	return math.Max(p.Preset-p.Elapsed, 0)
}

// Monitor polls a progress sampler until the count is complete
type Monitor struct {
	// Interval is the time between samples, DefaultPollInterval if zero
	Interval time.Duration

	// Report, if not nil, is called with every sample
	Report func(Progress)
}

// Run samples immediately, then once per Interval, until a sample is Done,
// the sampler fails, or ctx ends.  It returns the last good sample.
func (m Monitor) Run(ctx context.Context, sample func() (Progress, error)) (Progress, error) {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	var last Progress
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		// Wait fails at once when the next tick lies past ctx's deadline,
		// but sampling continues until ctx ends
		r := lim.Reserve()
		t := time.NewTimer(r.Delay())
		select {
		case <-ctx.Done():
			t.Stop()
			r.Cancel()
			return last, ctx.Err()
		case <-t.C:
		}
		p, err := sample()
		if err != nil {
			return last, err
		}
		last = p
		if m.Report != nil {
			m.Report(p)
		}
		if p.Done() {
			return last, nil
		}
	}
}

// Bar renders a text progress bar.  The rendered percentage never goes
// down, so a sampler that briefly reads low does not make the bar jump back.
type Bar struct {
	// Width is the number of characters in a full bar, DefaultBarWidth if zero
	Width int

	shown int
}

// Render formats p as a bar, prefixed with a carriage return so successive
// renders overwrite one another on a terminal
func (b *Bar) Render(p Progress) string {
	width := b.Width
	if width <= 0 {
		width = DefaultBarWidth
	}
	pct := p.Percent()
	if pct < b.shown {
		pct = b.shown
	}
	b.shown = pct
	fill := pct * width / 100
	return fmt.Sprintf("\r%3d%% [%-*s]  remaining: %d s", pct, width, strings.Repeat("#", fill), int(math.Ceil(p.Remaining())))
}

// Shown is the last percentage rendered
func (b *Bar) Shown() int {
	return b.shown
}

// TextReporter returns a Report func for Monitor which writes a Bar to w
// and ends the line when the count is done
func TextReporter(w io.Writer) func(Progress) {
	b := &Bar{}
	return func(p Progress) {
		io.WriteString(w, b.Render(p))
		if p.Done() {
			io.WriteString(w, "\n")
		}
	}
}
