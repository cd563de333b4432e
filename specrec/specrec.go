// Package specrec contains a spectrum recorder used to automatically save spectra to disk.
package specrec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lare/gammalab/canberra"
	"github.com/lare/gammalab/generichttp"
)

// Recorder records spectra as FITS files with incrementing filenames in
// yyyy-mm-dd subfolders.  It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Enabled is not consulted by Record; callers such as the spectrum route
	// check IsEnabled before recording
	Enabled bool

	// now is time.Now, replaceable in tests
	now func() time.Time
}

// New returns an enabled Recorder
func New(root, prefix string) *Recorder {
	return &Recorder{Root: root, Prefix: prefix, Enabled: true}
}

// folder is the dated subfolder for today
func (r *Recorder) folder() string {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	y, m, d := now().Date()
	return filepath.Join(r.Root, fmt.Sprintf("%04d-%02d-%02d", y, m, d))
}

// next scans fldr and returns the next unused counter
func (r *Recorder) next(fldr string) (int, error) {
	entries, err := os.ReadDir(fldr)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		// skip directories, non-fits, and wrong prefix
		if e.IsDir() {
			continue
		}
		fn := e.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	return count + 1, nil
}

// Record writes s to the next file and returns its path
func (r *Recorder) Record(s canberra.Spectrum) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fldr := r.folder()
	err := os.MkdirAll(fldr, 0777)
	if err != nil {
		return "", err
	}
	n, err := r.next(fldr)
	if err != nil {
		return "", err
	}
	fn := filepath.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, n))
	// O_EXCL so two processes sharing a folder never clobber each other
	fid, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return "", err
	}
	err = canberra.WriteFITS(fid, s)
	cerr := fid.Close()
	if err != nil {
		os.Remove(fn)
		return "", err
	}
	return fn, cerr
}

// IsEnabled reads Enabled under the lock
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled
}

// HTTPWrapper is an HTTP wrapper around a spectrum recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = os.MkdirAll(str.Str, 0777)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.Root = str.Str
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot() http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.Root, nil
	})
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(str.Str, `/\`) {
		http.Error(w, "prefix may not contain path separators", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.Prefix = str.Str
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix() http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.Prefix, nil
	})
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled() http.HandlerFunc {
	return generichttp.GetBool(func() (bool, error) {
		return h.IsEnabled(), nil
	})
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled() http.HandlerFunc {
	return generichttp.SetBool(func(b bool) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.Enabled = b
		return nil
	})
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix
// and /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = h.SetRoot
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = h.GetRoot()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = h.SetPrefix
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = h.GetPrefix()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = h.SetEnabled()
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = h.GetEnabled()
}
