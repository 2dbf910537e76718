package hubspot

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-hubspot/pkg/config"
	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hubspot/pkg/errors"
	"github.com/ajitpratap0/nebula-hubspot/pkg/schema"
)

// Resource names
const (
	Companies = "companies"
	Deals     = "deals"
)

// DealStageHistoryTable is the child table holding the versions of the
// deal stage property.
const DealStageHistoryTable = "deals_stage_history"

var (
	companiesAll = core.Endpoint{
		Path: "companies/v2/companies/paged",
		Pagination: core.Pagination{
			ResultsKey:    "companies",
			OffsetParam:   "offset",
			LimitParam:    "limit",
			NextOffsetKey: "offset",
			HasMoreKey:    "has-more",
		},
		PageSize: 250,
	}
	companiesRecent = core.Endpoint{
		Path: "companies/v2/companies/recent/modified",
		Pagination: core.Pagination{
			ResultsKey:    "results",
			OffsetParam:   "offset",
			LimitParam:    "count",
			NextOffsetKey: "offset",
			HasMoreKey:    "hasMore",
		},
		PageSize: 200,
	}
	dealsAll = core.Endpoint{
		Path: "deals/v1/deal/paged",
		Pagination: core.Pagination{
			ResultsKey:    "deals",
			OffsetParam:   "offset",
			LimitParam:    "limit",
			NextOffsetKey: "offset",
			HasMoreKey:    "hasMore",
		},
		PageSize: 250,
	}
	dealsRecent = core.Endpoint{
		Path: "deals/v1/deal/recent/modified",
		Pagination: core.Pagination{
			ResultsKey:    "results",
			OffsetParam:   "offset",
			LimitParam:    "count",
			NextOffsetKey: "offset",
			HasMoreKey:    "hasMore",
		},
		PageSize: 100,
	}
)

// DefaultCompanyProperties are requested when no company properties are configured
var DefaultCompanyProperties = []string{
	"about_us", "name", "phone", "facebook_company_page", "city", "country", "website",
	"industry", "annualrevenue", "linkedin_company_page", "hs_lastmodifieddate",
	"hubspot_owner_id", "notes_last_updated", "description", "createdate",
	"numberofemployees", "hs_lead_status", "founded_year", "twitterhandle", "linkedinbio",
}

// DefaultDealProperties are requested when no deal properties are configured
var DefaultDealProperties = []string{
	"authority", "budget", "campaign_source", "hs_analytics_source", "hs_campaign",
	"hs_lastmodifieddate", "need", "timeframe", "dealname", "amount", "closedate", "pipeline",
	"createdate", "engagements_last_meeting_booked", "dealtype", "hs_createdate", "description",
	"start_date", "closed_lost_reason", "closed_won_reason", "end_date", "lead_owner",
	"tech_owner", "service_amount", "contract_type", "hubspot_owner_id", "partner_name",
	"notes_last_updated",
}

// dealStageHistory links every version of the deal stage to its deal
var dealStageHistory = schema.ListRule{
	Table:      DealStageHistoryTable,
	Path:       "properties.dealstage.versions",
	ForeignKey: "Deal_ID",
	Columns:    []string{"name", "value", "timestamp", "source", "sourceId", "sourceVid", "requestId", "updatedByUserId"},
	PrimaryKey: []string{"Deal_ID", "sourceVid", "sourceId", "timestamp"},
}

// CRMResource is a HubSpot CRM object collection read through its legacy
// paged endpoints.
type CRMResource struct {
	name        string
	description string
	fetcher     core.PageFetcher

	all    core.Endpoint
	recent core.Endpoint

	primaryKey []string
	// baseRules always lead the resource table
	baseRules         []schema.Rule
	defaultProperties []string
	lists             []schema.ListRule
	// extraParams are sent with every request
	extraParams url.Values
}

var _ core.Resource = (*CRMResource)(nil)

// NewCompanies returns the companies resource
func NewCompanies(fetcher core.PageFetcher) core.Resource {
	return &CRMResource{
		name:              Companies,
		description:       "HubSpot companies with their versioned properties",
		fetcher:           fetcher,
		all:               companiesAll,
		recent:            companiesRecent,
		primaryKey:        []string{"companyId"},
		baseRules:         schema.Fields("additionalDomains", "companyId", "isDeleted", "mergeAudits", "portalId", "stateChanges"),
		defaultProperties: DefaultCompanyProperties,
	}
}

// NewDeals returns the deals resource. Deal stage versions are written to
// the deals_stage_history child table.
func NewDeals(fetcher core.PageFetcher) core.Resource {
	rules := schema.Fields(
		"associations.associatedCompanyIds",
		"associations.associatedDealIds",
		"associations.associatedVids",
		"dealId",
		"imports",
		"isDeleted",
		"portalId",
	)
	rules = append(rules, schema.VersionedAll("dealstage", "hs_object_id")...)
	rules = append(rules, schema.Field("stateChanges"))

	return &CRMResource{
		name:              Deals,
		description:       "HubSpot deals with associations and deal stage history",
		fetcher:           fetcher,
		all:               dealsAll,
		recent:            dealsRecent,
		primaryKey:        []string{"dealId"},
		baseRules:         rules,
		defaultProperties: DefaultDealProperties,
		lists:             []schema.ListRule{dealStageHistory},
		extraParams: url.Values{
			"propertiesWithHistory": {"dealstage"},
			"includeAssociations":   {"true"},
		},
	}
}

// Name implements core.Resource
func (r *CRMResource) Name() string { return r.name }

// Description implements core.Resource
func (r *CRMResource) Description() string { return r.description }

// Endpoint returns the endpoint for the retrieval mode
func (r *CRMResource) Endpoint(recent bool) core.Endpoint {
	if recent {
		return r.recent
	}
	return r.all
}

// Schema returns the table mapping for the given property list. An empty
// list selects the default properties.
func (r *CRMResource) Schema(properties []string, incremental bool) schema.Schema {
	if len(properties) == 0 {
		properties = r.defaultProperties
	}
	rules := append([]schema.Rule(nil), r.baseRules...)
	rules = append(rules, schema.VersionedAll(properties...)...)
	return schema.Schema{
		Table:       r.name,
		PrimaryKey:  r.primaryKey,
		Incremental: incremental,
		Rules:       rules,
		Lists:       r.lists,
	}
}

// Params returns the query parameters for a run, pagination excluded
func (r *CRMResource) Params(opts core.ExtractOptions) url.Values {
	properties := opts.Properties
	if len(properties) == 0 {
		properties = r.defaultProperties
	}
	params := url.Values{}
	for k, v := range r.extraParams {
		params[k] = append([]string(nil), v...)
	}
	params["properties"] = append([]string(nil), properties...)
	if opts.Recent && !opts.Since.IsZero() {
		params.Set("since", strconv.FormatInt(config.EpochMillis(opts.Since), 10))
	}
	return params
}

// Plan implements core.Resource. No request is made until the returned
// pages are ranged.
func (r *CRMResource) Plan(ctx context.Context, opts core.ExtractOptions) (*core.Extraction, error) {
	if r.fetcher == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "resource has no page fetcher").
			WithDetail("resource", r.name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := r.Schema(opts.Properties, opts.Incremental)
	flattener, err := schema.NewFlattener(s, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid table mapping").
			WithDetail("resource", r.name)
	}

	ep := r.Endpoint(opts.Recent)
	logger.Info("planned extraction",
		zap.String("resource", r.name),
		zap.String("path", ep.Path),
		zap.Bool("recent", opts.Recent),
		zap.Int("columns", len(s.Columns())))

	return &core.Extraction{
		Resource:  r.name,
		Pages:     PagesCounted(r.name, r.fetcher.Fetch(ctx, ep, r.Params(opts), ep.PageSize, 0)),
		Flattener: flattener,
		Table:     s.TableDef(),
		Children:  s.ChildTableDefs(),
	}, nil
}
