package shred

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/siegeai/jch/jsonpath"
	"github.com/siegeai/jch/metrics"
	"github.com/siegeai/jch/parser"
	"github.com/siegeai/jch/sender"
)

const DefaultMaxOpen = 256

var ErrWriterClosed = errors.New("shred: writer closed")

type column struct {
	f  *os.File
	bw *bufio.Writer
	zw io.WriteCloser
}

func (c *column) close() error {
	err := c.zw.Close()
	if ferr := c.bw.Flush(); err == nil {
		err = ferr
	}
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}

type columnStats struct {
	keys   []string
	values uint64
	bytes  uint64
}

type Option func(*Writer)

// WithMaxOpen bounds the number of column files held open at once.
func WithMaxOpen(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxOpen = n
		}
	}
}

func WithCompression(c Compression) Option {
	return func(w *Writer) {
		w.codec = c
	}
}

// WithEncoder sets the extension used for file names. The writer itself
// receives bytes that were already encoded.
func WithEncoder(enc Encoder) Option {
	return func(w *Writer) {
		w.ext = enc.Ext()
	}
}

func WithManifest() Option {
	return func(w *Writer) {
		w.manifest = true
	}
}

// Writer appends each encoded leaf to the column file of its path. Column
// files live flat in one directory. Writer is a Sender and must only be
// used from one goroutine.
type Writer struct {
	dir      string
	ext      string
	codec    Compression
	maxOpen  int
	manifest bool

	open     *lru.Cache[string, *column]
	stats    map[string]*columnStats
	tracker  *collisionTracker
	evictErr error

	errors     int
	collisions int
	finished   bool
	closed     bool

	runID   uuid.UUID
	created time.Time
}

func NewWriter(dir string, opts ...Option) (*Writer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output directory: %s is not a directory", dir)
	}

	w := &Writer{
		dir:     dir,
		ext:     MsgPack{}.Ext(),
		codec:   None,
		maxOpen: DefaultMaxOpen,
		stats:   make(map[string]*columnStats),
		tracker: newCollisionTracker(),
		runID:   uuid.New(),
		created: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.open, err = lru.NewWithEvict[string, *column](w.maxOpen, w.evicted)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) evicted(name string, c *column) {
	metrics.ColumnsOpen.Dec()
	if err := c.close(); err != nil {
		slog.Warn("could not close column", "file", name, "err", err)
		if w.evictErr == nil {
			w.evictErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
}

func (w *Writer) Send(ev sender.Event[[]byte]) error {
	if w.closed {
		return ErrWriterClosed
	}
	switch ev.Kind {
	case sender.Value:
		return w.write(ev.Path, ev.Value)
	case sender.Error:
		w.errors++
		slog.Warn("skipping value", "path", ev.Path.JQ(), "err", ev.Message, "fatal", ev.Fatal)
	case sender.Finished:
		w.finished = true
	}
	return nil
}

func (w *Writer) write(path jsonpath.Path, b []byte) error {
	keys := jsonpath.Canonicalize(path).Keys()
	name := FilenameOfKeys(keys, w.ext) + w.codec.Suffix()

	if first, ok := w.tracker.track(name, keys); ok {
		w.collisions++
		slog.Warn("paths share a column file", "file", name, "first", first, "path", renderKeys(keys))
	}

	c, err := w.column(name, keys)
	if err != nil {
		return err
	}
	if _, err := c.zw.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	st := w.stats[name]
	st.values++
	st.bytes += uint64(len(b))
	metrics.BytesWritten.Add(float64(len(b)))
	return w.evictErr
}

// column returns the open handle for name. The first open of a run
// truncates, later opens append after an eviction.
func (w *Writer) column(name string, keys []string) (*column, error) {
	if c, ok := w.open.Get(name); ok {
		return c, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if _, seen := w.stats[name]; !seen {
		flags |= os.O_TRUNC
	}

	if w.open.Len() >= w.maxOpen {
		w.open.RemoveOldest()
	}

	f, err := os.OpenFile(filepath.Join(w.dir, name), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open column: %w", err)
	}
	bw := bufio.NewWriter(f)
	zw, err := w.codec.NewWriter(bw)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open column %s: %w", name, err)
	}

	c := &column{f: f, bw: bw, zw: zw}
	w.open.Add(name, c)
	metrics.ColumnsOpen.Inc()
	if _, seen := w.stats[name]; !seen {
		w.stats[name] = &columnStats{keys: keys}
	}
	return c, nil
}

// Open reports how many column files are currently held open.
func (w *Writer) Open() int {
	return w.open.Len()
}

func (w *Writer) Finished() bool {
	return w.finished
}

func (w *Writer) Errors() int {
	return w.errors
}

func (w *Writer) Collisions() int {
	return w.collisions
}

// Close flushes and closes every column and writes the manifest when
// requested. The first error wins.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	for _, name := range w.open.Keys() {
		w.open.Remove(name)
	}
	if w.evictErr != nil {
		return w.evictErr
	}
	if w.manifest {
		return w.writeManifest()
	}
	return nil
}

// TokenWriter encodes raw tokens in the consumer before writing them.
func TokenWriter(w *Writer, enc Encoder) sender.Sender[parser.Token] {
	if enc == nil {
		enc = MsgPack{}
	}
	return sender.Map[parser.Token, []byte](w, func(tok parser.Token) ([]byte, error) {
		return enc.Encode(nil, tok)
	})
}
