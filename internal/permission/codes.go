// Package permission holds the permission catalog, the set checks used for every
// authorization decision, and the per-session Resolver that loads a user's grants.
package permission

import "slices"

// Permission codes, "<module>.<action>".
const (
	UsersView   = "users.view"
	UsersCreate = "users.create"
	UsersEdit   = "users.edit"
	UsersDelete = "users.delete"

	CompaniesView   = "companies.view"
	CompaniesCreate = "companies.create"
	CompaniesEdit   = "companies.edit"
	CompaniesDelete = "companies.delete"

	ProductsView   = "products.view"
	ProductsCreate = "products.create"
	ProductsEdit   = "products.edit"
	ProductsDelete = "products.delete"

	SalesView   = "sales.view"
	SalesCreate = "sales.create"
	SalesEdit   = "sales.edit"
	SalesDelete = "sales.delete"

	MarketingView = "marketing.view"
	MarketingEdit = "marketing.edit"

	ReportsView   = "reports.view"
	ReportsCreate = "reports.create"
	ReportsExport = "reports.export"

	SettingsView = "settings.view"
	SettingsEdit = "settings.edit"

	RolesManage = "roles.manage"

	BackupsCreate  = "backups.create"
	BackupsRestore = "backups.restore"
)

// Wildcard in a granted set satisfies every check.
const Wildcard = "*"

// Built-in role names.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// Definition describes a seedable permission.
type Definition struct {
	Code   string
	Name   string
	Module string
}

var catalog = []Definition{
	{Code: UsersView, Name: "View users", Module: "users"},
	{Code: UsersCreate, Name: "Create users", Module: "users"},
	{Code: UsersEdit, Name: "Edit users", Module: "users"},
	{Code: UsersDelete, Name: "Delete users", Module: "users"},

	{Code: CompaniesView, Name: "View companies", Module: "companies"},
	{Code: CompaniesCreate, Name: "Create companies", Module: "companies"},
	{Code: CompaniesEdit, Name: "Edit companies", Module: "companies"},
	{Code: CompaniesDelete, Name: "Delete companies", Module: "companies"},

	{Code: ProductsView, Name: "View products", Module: "products"},
	{Code: ProductsCreate, Name: "Create products", Module: "products"},
	{Code: ProductsEdit, Name: "Edit products", Module: "products"},
	{Code: ProductsDelete, Name: "Delete products", Module: "products"},

	{Code: SalesView, Name: "View sales", Module: "sales"},
	{Code: SalesCreate, Name: "Create sales", Module: "sales"},
	{Code: SalesEdit, Name: "Edit sales", Module: "sales"},
	{Code: SalesDelete, Name: "Delete sales", Module: "sales"},

	{Code: MarketingView, Name: "View campaigns and contacts", Module: "marketing"},
	{Code: MarketingEdit, Name: "Manage campaigns", Module: "marketing"},

	{Code: ReportsView, Name: "View reports", Module: "reports"},
	{Code: ReportsCreate, Name: "Create reports", Module: "reports"},
	{Code: ReportsExport, Name: "Export reports", Module: "reports"},

	{Code: SettingsView, Name: "View settings", Module: "settings"},
	{Code: SettingsEdit, Name: "Edit settings", Module: "settings"},

	{Code: RolesManage, Name: "Manage roles and permissions", Module: "roles"},

	{Code: BackupsCreate, Name: "Create backups", Module: "backups"},
	{Code: BackupsRestore, Name: "Restore backups", Module: "backups"},
}

var defaultRolePermissions = map[string][]string{
	RoleUser: {
		ProductsView,
		SalesView,
		SalesCreate,
		ReportsView,
	},
	RoleManager: {
		UsersView, UsersCreate, UsersEdit,
		ProductsView, ProductsCreate, ProductsEdit,
		SalesView, SalesCreate, SalesEdit,
		MarketingView,
		ReportsView, ReportsCreate, ReportsExport,
		SettingsView,
		BackupsCreate,
	},
}

// BuiltinRole is a system role created by the seeder.
type BuiltinRole struct {
	Name        string
	Description string
}

var builtinRoles = []BuiltinRole{
	{Name: RoleAdmin, Description: "Administrator, full access"},
	{Name: RoleManager, Description: "Manager, operational access and reports"},
	{Name: RoleUser, Description: "User, basic sales access"},
}

// Catalog returns every permission definition.
func Catalog() []Definition {
	return slices.Clone(catalog)
}

// Codes returns every permission code in catalog order.
func Codes() []string {
	codes := make([]string, 0, len(catalog))
	for _, d := range catalog {
		codes = append(codes, d.Code)
	}
	return codes
}

// BuiltinRoles returns the system roles.
func BuiltinRoles() []BuiltinRole {
	return slices.Clone(builtinRoles)
}

// DefaultRolePermissions returns the codes a built-in role starts with. Admin gets the
// whole catalog; unknown roles get nothing.
func DefaultRolePermissions(role string) []string {
	if IsAdminRole(role) {
		return Codes()
	}
	return slices.Clone(defaultRolePermissions[role])
}

// IsAdminRole reports whether a role name bypasses permission checks.
func IsAdminRole(name string) bool {
	return name == RoleAdmin
}
