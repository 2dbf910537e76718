// Package models provides the data structures shared by the fetch,
// flatten and write stages of an extraction.
//
// A raw API object travels as a Record inside a Page. The flattener turns
// it into one FlatRow for the resource table plus any number of ChildRows
// for linked tables, and each TableWriter reports what it persisted through
// a Manifest.
package models

// Record is one raw, arbitrarily nested object as returned by the API.
// Numbers are kept as json.Number by the decoder.
type Record map[string]interface{}

// Page is one successful API response in a paginated sequence.
type Page struct {
	// Records holds the objects found under the endpoint's results key, in
	// response order
	Records []Record

	// Index is the 0-based position of the page in its sequence
	Index int

	// Offset is the offset sent with the request that produced the page
	Offset int64

	// NextOffset is the offset reported by the API for the following request
	NextOffset int64

	// PageSize is the limit sent with the request
	PageSize int

	// HasMore is the continuation flag reported by the API
	HasMore bool
}

// Len returns the number of records in the page
func (p *Page) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Records)
}
