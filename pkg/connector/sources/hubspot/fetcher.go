// Package hubspot implements the HubSpot CRM resources and the offset
// paginated fetcher that reads them.
package hubspot

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/json"
	"github.com/ajitpratap0/nebula-hubspot/pkg/metrics"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
	"github.com/ajitpratap0/nebula-hubspot/pkg/observability"
)

// Getter performs one logical GET, retries included
type Getter interface {
	Get(ctx context.Context, path string, params url.Values) ([]byte, error)
}

// Fetcher pages through offset paginated endpoints
type Fetcher struct {
	client Getter
	logger *zap.Logger
}

var _ core.PageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher on top of client
func NewFetcher(client Getter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: client,
		logger: logger.With(zap.String("component", "page_fetcher")),
	}
}

// Fetch implements core.PageFetcher.
//
// Each request carries params plus the endpoint's offset and limit
// parameters. A pageSize of zero or less uses the endpoint default. The
// sequence ends after the first page whose continuation flag is false and
// stops at the first error, which is yielded with a nil page. A page that
// claims more results without advancing the offset is a protocol error.
func (f *Fetcher) Fetch(ctx context.Context, ep core.Endpoint, params url.Values, pageSize int, startOffset int64) iter.Seq2[*models.Page, error] {
	if pageSize <= 0 {
		pageSize = ep.PageSize
	}
	consumed := false

	return func(yield func(*models.Page, error) bool) {
		if consumed {
			yield(nil, errors.New(errors.ErrorTypeInternal, "page sequence already consumed").
				WithDetail("path", ep.Path))
			return
		}
		consumed = true

		offset := startOffset
		for index := 0; ; index++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := f.fetchPage(ctx, ep, params, pageSize, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			page.Index = index

			if page.HasMore && page.NextOffset <= offset {
				yield(nil, errors.New(errors.ErrorTypeProtocol, "offset did not advance").
					WithDetail("path", ep.Path).
					WithDetail("offset", offset).
					WithDetail("next_offset", page.NextOffset))
				return
			}

			f.logger.Debug("page fetched",
				zap.String("path", ep.Path),
				zap.Int("index", index),
				zap.Int64("offset", offset),
				zap.Int("records", page.Len()),
				zap.Bool("has_more", page.HasMore))

			if !yield(page, nil) {
				return
			}
			if !page.HasMore {
				return
			}
			offset = page.NextOffset
		}
	}
}

func (f *Fetcher) fetchPage(ctx context.Context, ep core.Endpoint, params url.Values, pageSize int, offset int64) (page *models.Page, err error) {
	ctx, span := observability.StartSpan(ctx, "fetch_page",
		attribute.String("path", ep.Path),
		attribute.Int64("offset", offset))
	defer func() { span.Finish(err) }()

	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	query.Set(ep.Pagination.OffsetParam, strconv.FormatInt(offset, 10))
	query.Set(ep.Pagination.LimitParam, strconv.Itoa(pageSize))

	body, err := f.client.Get(ctx, ep.Path, query)
	if err != nil {
		return nil, err
	}

	page, perr := parsePage(body, ep.Pagination)
	if perr != nil {
		return nil, perr.WithDetail("path", ep.Path)
	}
	page.Offset = offset
	page.PageSize = pageSize
	span.SetAttribute("records", page.Len())
	return page, nil
}

// parsePage extracts records, continuation flag and next offset from a
// response body. The next offset is required only when more pages follow.
func parsePage(body []byte, p core.Pagination) (*models.Page, *errors.Error) {
	var doc map[string]interface{}
	if err := json.Decode(body, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "response is not a JSON object")
	}

	rawResults, ok := doc[p.ResultsKey]
	if !ok {
		return nil, errors.New(errors.ErrorTypeProtocol, "results key missing from response").
			WithDetail("key", p.ResultsKey)
	}
	list, ok := rawResults.([]interface{})
	if !ok && rawResults != nil {
		return nil, errors.New(errors.ErrorTypeProtocol, "results value is not a list").
			WithDetail("key", p.ResultsKey)
	}
	records := make([]models.Record, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeProtocol, "result item is not an object").
				WithDetail("key", p.ResultsKey)
		}
		records = append(records, models.Record(obj))
	}

	rawMore, ok := doc[p.HasMoreKey]
	if !ok {
		return nil, errors.New(errors.ErrorTypeProtocol, "continuation flag missing from response").
			WithDetail("key", p.HasMoreKey)
	}
	hasMore, ok := boolLike(rawMore)
	if !ok {
		return nil, errors.New(errors.ErrorTypeProtocol, "continuation flag is not boolean").
			WithDetail("key", p.HasMoreKey)
	}

	page := &models.Page{Records: records, HasMore: hasMore}
	rawNext, present := doc[p.NextOffsetKey]
	if !present || rawNext == nil {
		if hasMore {
			return nil, errors.New(errors.ErrorTypeProtocol, "next offset missing from response").
				WithDetail("key", p.NextOffsetKey)
		}
		return page, nil
	}
	next, ok := intLike(rawNext)
	if !ok {
		if hasMore {
			return nil, errors.New(errors.ErrorTypeProtocol, "next offset is not an integer").
				WithDetail("key", p.NextOffsetKey)
		}
		return page, nil
	}
	page.NextOffset = next
	return page, nil
}

func boolLike(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return b, err == nil
	case json.Number:
		f, err := val.Float64()
		return f != 0, err == nil
	case float64:
		return val != 0, true
	default:
		return false, false
	}
}

func intLike(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		f, err := val.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	case float64:
		if val != float64(int64(val)) {
			return 0, false
		}
		return int64(val), true
	default:
		return 0, false
	}
}

// PagesCounted wraps pages so every yielded page is counted for resource
func PagesCounted(resource string, pages iter.Seq2[*models.Page, error]) iter.Seq2[*models.Page, error] {
	return func(yield func(*models.Page, error) bool) {
		for page, err := range pages {
			if err == nil {
				metrics.PagesFetched.WithLabelValues(resource).Inc()
			}
			if !yield(page, err) {
				return
			}
		}
	}
}
