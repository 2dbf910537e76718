package hubspot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-hubspot/pkg/models"
)

func TestResourcesAreRegistered(t *testing.T) {
	assert.True(t, registry.HasResource(Companies))
	assert.True(t, registry.HasResource(Deals))

	res, err := registry.CreateResource(Deals, NewFetcher(&scriptedGetter{}, nil))
	require.NoError(t, err)
	assert.Equal(t, Deals, res.Name())
	assert.NotEmpty(t, res.Description())
}

func TestCompaniesSchemaColumns(t *testing.T) {
	r := NewCompanies(nil).(*CRMResource)
	s := r.Schema([]string{"name"}, false)

	assert.Equal(t, []string{
		"additionalDomains", "companyId", "isDeleted", "mergeAudits", "portalId", "stateChanges",
		"properties.name.source",
		"properties.name.sourceId",
		"properties.name.timestamp",
		"properties.name.value",
		"properties.name.versions",
	}, s.Columns())
	assert.Equal(t, []string{"companyId"}, s.PrimaryKey)
	assert.Empty(t, s.ChildTableDefs())
}

func TestDealsSchemaDefaultsAndDedupe(t *testing.T) {
	r := NewDeals(nil).(*CRMResource)

	def := r.Schema(nil, true).TableDef()
	assert.True(t, def.Incremental)
	assert.True(t, def.HasColumn("properties.dealname.value"))
	assert.True(t, def.HasColumn("properties.hs_object_id.value"))
	assert.Equal(t, "stateChanges", def.Columns[17])

	// dealstage is always present and never duplicated
	cols := r.Schema([]string{"dealstage", "amount"}, false).Columns()
	count := 0
	for _, c := range cols {
		if c == "properties.dealstage.value" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, cols, 18+5)

	children := r.Schema(nil, true).ChildTableDefs()
	require.Len(t, children, 1)
	assert.Equal(t, DealStageHistoryTable, children[0].Name)
	assert.Equal(t, "Deal_ID", children[0].Columns[0])
	assert.Equal(t, []string{"Deal_ID", "sourceVid", "sourceId", "timestamp"}, children[0].PrimaryKey)
	assert.True(t, children[0].Incremental)
}

func TestParams(t *testing.T) {
	deals := NewDeals(nil).(*CRMResource)
	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p := deals.Params(core.ExtractOptions{Properties: []string{"amount", "dealname"}, Recent: true, Since: since})
	assert.Equal(t, []string{"amount", "dealname"}, p["properties"])
	assert.Equal(t, "dealstage", p.Get("propertiesWithHistory"))
	assert.Equal(t, "true", p.Get("includeAssociations"))
	assert.Equal(t, "1704153600000", p.Get("since"))

	p = deals.Params(core.ExtractOptions{Since: since})
	assert.Empty(t, p.Get("since"))
	assert.Equal(t, DefaultDealProperties, p["properties"])

	companies := NewCompanies(nil).(*CRMResource)
	p = companies.Params(core.ExtractOptions{})
	assert.Empty(t, p.Get("propertiesWithHistory"))
	assert.Equal(t, DefaultCompanyProperties, p["properties"])
}

func TestEndpointSelection(t *testing.T) {
	r := NewCompanies(nil).(*CRMResource)
	assert.Equal(t, "companies/v2/companies/paged", r.Endpoint(false).Path)
	assert.Equal(t, 250, r.Endpoint(false).PageSize)
	assert.Equal(t, "companies/v2/companies/recent/modified", r.Endpoint(true).Path)
	assert.Equal(t, "count", r.Endpoint(true).Pagination.LimitParam)
}

func TestPlanFlattensDealPages(t *testing.T) {
	g := &scriptedGetter{bodies: []string{`{
		"deals": [{
			"dealId": 77,
			"portalId": 1,
			"properties": {
				"dealname": {"value": "Big one", "timestamp": 1, "source": "API", "sourceId": null, "versions": []},
				"dealstage": {"value": "won", "versions": [
					{"name": "dealstage", "value": "won", "timestamp": 2, "sourceVid": [], "sourceId": "u"}
				]}
			}
		}],
		"hasMore": false,
		"offset": 1
	}`}}
	res := NewDeals(NewFetcher(g, nil))

	ext, err := res.Plan(context.Background(), core.ExtractOptions{Properties: []string{"dealname"}})
	require.NoError(t, err)
	assert.Empty(t, g.queries, "planning must not fetch")
	assert.Equal(t, Deals, ext.Table.Name)

	var rows []models.FlatRow
	var children []models.ChildRow
	for page, err := range ext.Pages {
		require.NoError(t, err)
		for _, rec := range page.Records {
			row, kids, err := ext.Flattener.Flatten(rec)
			require.NoError(t, err)
			rows = append(rows, row)
			children = append(children, kids...)
		}
	}

	require.Len(t, rows, 1)
	assert.Equal(t, "Big one", rows[0].Values["properties.dealname.value"])
	assert.Equal(t, ext.Table.Columns, rows[0].Columns)
	assert.Equal(t, []string{"dealname"}, g.queries[0]["properties"])

	require.Len(t, children, 1)
	assert.Equal(t, "77", children[0].Row.Values["Deal_ID"])
	assert.Equal(t, "won", children[0].Row.Values["value"])
	assert.Equal(t, ext.Children[0].Columns, children[0].Row.Columns)
}

func TestPlanWithoutFetcher(t *testing.T) {
	_, err := NewCompanies(nil).Plan(context.Background(), core.ExtractOptions{})
	require.Error(t, err)
}
