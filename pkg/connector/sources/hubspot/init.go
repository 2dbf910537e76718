package hubspot

import (
	"github.com/ajitpratap0/nebula-hubspot/pkg/connector/registry"
)

func init() {
	// Register the CRM resources in the global registry
	_ = registry.RegisterResource(Companies, NewCompanies)
	_ = registry.RegisterResource(Deals, NewDeals)
}
