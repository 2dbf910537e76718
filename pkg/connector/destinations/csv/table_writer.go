// Package csv writes flattened rows into CSV tables with their manifests.
//
// A TableWriter owns one output file. Rows are encoded into an in-memory
// buffer and flushed to the file when either the byte or the row threshold
// is reached, and on Close. The header is written once: it is the declared
// column list of the table, or the columns of the first row when none were
// declared. Every later row is coerced to that header, so values for
// unknown columns are dropped and missing ones are left empty.
//
// # Example Usage
//
//	w, err := csv.Open(afero.NewOsFs(), "/data/out/tables", def, csv.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	for row := range rows {
//	    if err := w.Write(row); err != nil {
//	        return err
//	    }
//	}
//
// Child tables are opened through AddChild; the parent closes them and
// reports their manifests together with its own.
package csv

import (
	"bytes"
	"encoding/csv"
	"io"
	"iter"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/metrics"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
	"github.com/ajitpratap0/nebula-hubspot/pkg/pool"
)

// Compression values
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Writer defaults
const (
	DefaultBufferSize = 8 * datasize.KB
	DefaultBufferRows = 1000
	DefaultDelimiter  = ','
)

// Options configure a TableWriter. Zero values select the defaults.
type Options struct {
	// BufferSize is the encoded size at which buffered rows are flushed
	BufferSize datasize.ByteSize
	// BufferRows is the row count at which buffered rows are flushed
	BufferRows  int
	Delimiter   rune
	Compression string
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.BufferRows <= 0 {
		o.BufferRows = DefaultBufferRows
	}
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.Compression == "" {
		o.Compression = CompressionNone
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// TableWriter writes one table and owns the writers of its child tables.
// It is not safe for concurrent use.
type TableWriter struct {
	fs     afero.Fs
	dir    string
	def    models.TableDef
	opts   Options
	logger *zap.Logger
	path   string

	// file and out are set on the first flush
	file afero.File
	gz   *gzip.Writer
	out  io.Writer

	buf      bytes.Buffer
	encoder  *csv.Writer
	columns  []string
	header   bool
	buffered int
	written  int

	children   map[string]*TableWriter
	childOrder []string

	closed    bool
	manifests []models.Manifest
	closeErr  error
}

var _ core.RowWriter = (*TableWriter)(nil)

// Open prepares a writer for def under dir. No file is created until the
// first flush, so a table that never receives a row leaves nothing behind.
func Open(fs afero.Fs, dir string, def models.TableDef, opts Options) (*TableWriter, error) {
	if def.Name == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "table has no name")
	}
	opts = opts.withDefaults()
	if opts.Compression != CompressionNone && opts.Compression != CompressionGzip {
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported compression").
			WithDetail("table", def.Name).
			WithDetail("compression", opts.Compression)
	}

	name := def.Name + ".csv"
	if opts.Compression == CompressionGzip {
		name += ".gz"
	}

	w := &TableWriter{
		fs:       fs,
		dir:      dir,
		def:      def,
		opts:     opts,
		logger:   opts.Logger.With(zap.String("component", "table_writer"), zap.String("table", def.Name)),
		path:     filepath.Join(dir, name),
		columns:  append([]string(nil), def.Columns...),
		children: make(map[string]*TableWriter),
	}
	w.encoder = csv.NewWriter(&w.buf)
	w.encoder.Comma = opts.Delimiter
	return w, nil
}

// Path returns the output file path
func (w *TableWriter) Path() string {
	return w.path
}

// Columns returns the header, or nil before it is fixed
func (w *TableWriter) Columns() []string {
	if len(w.columns) == 0 {
		return nil
	}
	return append([]string(nil), w.columns...)
}

// AddChild opens a writer for a linked child table. The child shares the
// parent's directory and options and is closed by the parent.
func (w *TableWriter) AddChild(def models.TableDef) (*TableWriter, error) {
	if w.closed {
		return nil, w.closedError()
	}
	if _, exists := w.children[def.Name]; exists || def.Name == w.def.Name {
		return nil, errors.New(errors.ErrorTypeInternal, "child table already registered").
			WithDetail("table", w.def.Name).
			WithDetail("child", def.Name)
	}
	child, err := Open(w.fs, w.dir, def, w.opts)
	if err != nil {
		return nil, err
	}
	w.children[def.Name] = child
	w.childOrder = append(w.childOrder, def.Name)
	return child, nil
}

// WriteHeader buffers the declared header so the table is persisted even
// without rows. It is a no-op once the header is written or when no
// columns were declared.
func (w *TableWriter) WriteHeader() error {
	if w.closed {
		return w.closedError()
	}
	if w.header || len(w.columns) == 0 {
		return nil
	}
	return w.writeHeader()
}

func (w *TableWriter) writeHeader() error {
	if err := w.encoder.Write(w.columns); err != nil {
		return w.ioError(err, "failed to encode header")
	}
	w.encoder.Flush()
	w.header = true
	return nil
}

// Write buffers row, flushing when a threshold is reached
func (w *TableWriter) Write(row models.FlatRow) error {
	if w.closed {
		return w.closedError()
	}

	if !w.header {
		if len(w.columns) == 0 {
			w.columns = append([]string(nil), row.Columns...)
		}
		if err := w.writeHeader(); err != nil {
			return err
		}
	}

	record := pool.GetStringSlice(len(w.columns))
	defer pool.PutStringSlice(record)
	for i, col := range w.columns {
		(*record)[i] = models.FormatValue(row.Values[col])
	}
	if err := w.encoder.Write(*record); err != nil {
		return w.ioError(err, "failed to encode row")
	}
	w.encoder.Flush()
	w.buffered++

	if w.buffered >= w.opts.BufferRows || uint64(w.buf.Len()) >= w.opts.BufferSize.Bytes() {
		return w.flush()
	}
	return nil
}

// WriteAll writes every row of rows and stops at the first error
func (w *TableWriter) WriteAll(rows iter.Seq[models.FlatRow]) error {
	for row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteWithChildren writes row and routes each child row to the child
// writer registered for its table.
func (w *TableWriter) WriteWithChildren(row models.FlatRow, children []models.ChildRow) error {
	if err := w.Write(row); err != nil {
		return err
	}
	for _, c := range children {
		child, ok := w.children[c.Table]
		if !ok {
			return errors.New(errors.ErrorTypeInternal, "no writer for child table").
				WithDetail("table", w.def.Name).
				WithDetail("child", c.Table)
		}
		if err := child.Write(c.Row); err != nil {
			return err
		}
	}
	return nil
}

func (w *TableWriter) flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	if w.out == nil {
		if err := w.create(); err != nil {
			return err
		}
	}

	if _, err := w.out.Write(w.buf.Bytes()); err != nil {
		return w.ioError(err, "failed to write rows")
	}
	metrics.BufferFlushes.WithLabelValues(w.def.Name).Inc()
	metrics.RowsWritten.WithLabelValues(w.def.Name).Add(float64(w.buffered))

	w.logger.Debug("buffer flushed",
		zap.Int("rows", w.buffered),
		zap.Int("bytes", w.buf.Len()))

	w.written += w.buffered
	w.buffered = 0
	w.buf.Reset()
	return nil
}

func (w *TableWriter) create() error {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return w.ioError(err, "failed to create output directory")
	}
	file, err := w.fs.Create(w.path)
	if err != nil {
		return w.ioError(err, "failed to create output file")
	}
	w.file = file
	w.out = file
	if w.opts.Compression == CompressionGzip {
		w.gz = gzip.NewWriter(file)
		w.out = w.gz
	}
	w.logger.Info("output file created", zap.String("path", w.path))
	return nil
}

// Close flushes buffered rows, closes the file and the child writers, and
// returns the manifests of every table that was persisted. Manifests are
// returned even when an error is. Closing twice returns the same result.
func (w *TableWriter) Close() ([]models.Manifest, error) {
	if w.closed {
		return w.manifests, w.closeErr
	}
	w.closed = true

	var firstErr error
	if err := w.flush(); err != nil {
		firstErr = err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil && firstErr == nil {
			firstErr = w.ioError(err, "failed to finish compressed stream")
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = w.ioError(err, "failed to close output file")
		}
	}

	var manifests []models.Manifest
	if w.file != nil {
		manifests = append(manifests, w.manifest())
	}
	for _, name := range w.childOrder {
		childManifests, err := w.children[name].Close()
		manifests = append(manifests, childManifests...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	w.logger.Info("table closed",
		zap.String("path", w.path),
		zap.Int("rows", w.written))

	w.manifests = manifests
	w.closeErr = firstErr
	return manifests, firstErr
}

func (w *TableWriter) manifest() models.Manifest {
	pk := w.def.PrimaryKey
	if pk == nil {
		pk = []string{}
	}
	return models.Manifest{
		Table:       w.def.Name,
		PrimaryKey:  append([]string{}, pk...),
		Incremental: w.def.Incremental,
		Columns:     w.Columns(),
		RowsWritten: w.written,
		Path:        w.path,
	}
}

func (w *TableWriter) ioError(err error, msg string) error {
	return errors.Wrap(err, errors.ErrorTypeFile, msg).
		WithDetail("table", w.def.Name).
		WithDetail("path", w.path)
}

func (w *TableWriter) closedError() error {
	return errors.New(errors.ErrorTypeInternal, "table writer is closed").
		WithDetail("table", w.def.Name)
}
