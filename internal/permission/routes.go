package permission

import (
	"slices"
	"strings"
)

// routePermissions lists the codes a front-end route needs. All codes are required.
var routePermissions = map[string][]string{
	"/":                     {},
	"/customers":            {CompaniesView},
	"/products":             {ProductsView},
	"/services":             {ProductsView},
	"/suppliers":            {CompaniesView},
	"/sales":                {SalesView},
	"/sales/service-orders": {SalesView},
	"/sales/shipping":       {SalesView},
	"/sales/quotes":         {SalesView},
	"/marketing/campaigns":  {MarketingView},
	"/marketing/contacts":   {MarketingView},
	"/marketing/dispatches": {MarketingView},
	"/settings/company":     {CompaniesView},
	"/settings/users":       {UsersView},
	"/settings/permissions": {UsersView, UsersEdit},
	"/settings/backup":      {BackupsCreate},
}

// RoutePermissions returns the codes required by a route. The second result is false
// for routes that are not mapped.
func RoutePermissions(path string) ([]string, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	codes, ok := routePermissions[path]
	return slices.Clone(codes), ok
}

// CanAccessRoute reports whether granted opens path. Unmapped routes and routes with no
// requirement are open to everyone.
func CanAccessRoute(granted Set, path string) bool {
	codes, ok := RoutePermissions(path)
	if !ok || len(codes) == 0 {
		return true
	}
	return HasAllPermissions(granted, codes)
}
