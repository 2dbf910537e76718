// Package core defines the contracts between the fetch, flatten and write
// stages of an extraction.
package core

import (
	"context"
	"iter"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
)

// Pagination names the request parameters and response keys an endpoint
// uses for offset based paging.
type Pagination struct {
	// ResultsKey is the response key holding the list of records
	ResultsKey string
	// OffsetParam is the request parameter carrying the current offset
	OffsetParam string
	// LimitParam is the request parameter carrying the page size
	LimitParam string
	// NextOffsetKey is the response key holding the offset of the next page
	NextOffsetKey string
	// HasMoreKey is the response key holding the continuation flag
	HasMoreKey string
}

// Endpoint is a paged API path with its pagination keys
type Endpoint struct {
	Path       string
	Pagination Pagination
	// PageSize is used when the caller does not request a size
	PageSize int
}

// PageFetcher produces the pages of an endpoint.
//
// The returned sequence is lazy: a request is made only when the consumer
// asks for the next page, and stops when the consumer stops ranging. It is
// finite and cannot be restarted; ranging it a second time yields an
// internal error. Calling Fetch again starts a fresh sequence.
type PageFetcher interface {
	Fetch(ctx context.Context, ep Endpoint, params url.Values, pageSize int, startOffset int64) iter.Seq2[*models.Page, error]
}

// RecordFlattener turns one raw record into a row of the resource table
// and rows of its linked child tables.
type RecordFlattener interface {
	Flatten(record models.Record) (models.FlatRow, []models.ChildRow, error)
}

// RowWriter accepts flattened rows and reports what it persisted.
// Close must be called on every path; it flushes buffered rows and is
// idempotent.
type RowWriter interface {
	WriteWithChildren(row models.FlatRow, children []models.ChildRow) error
	Close() ([]models.Manifest, error)
}

// ExtractOptions are the per-run choices for a resource
type ExtractOptions struct {
	// Properties overrides the resource's default property list when set
	Properties []string
	// Recent selects the recently modified endpoint
	Recent bool
	// Since bounds the recent endpoint; zero means no bound
	Since time.Time
	// Incremental marks the produced tables for incremental load
	Incremental bool
	Logger      *zap.Logger
}

// Extraction is everything needed to run one resource: its page
// sequence, how to flatten the records and which tables result.
type Extraction struct {
	Resource  string
	Pages     iter.Seq2[*models.Page, error]
	Flattener RecordFlattener
	// Table is the resource table
	Table models.TableDef
	// Children are the linked child tables
	Children []models.TableDef
}

// Resource is an extractable API collection such as companies or deals
type Resource interface {
	Name() string
	Description() string
	Plan(ctx context.Context, opts ExtractOptions) (*Extraction, error)
}
