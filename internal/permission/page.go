// Package permission defines the closed set of dashboard pages and the CRUD
// flags that can be granted on each of them.
package permission

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidPage is returned when a page name is not part of the page set
var ErrInvalidPage = errors.New("invalid page")

// Page identifies a section of the dashboard that is permissioned independently
type Page string

const (
	PageProductsList      Page = "products_list"
	PageMarketingList     Page = "marketing_list"
	PageOrderList         Page = "order_list"
	PageMediaPlans        Page = "media_plans"
	PageOfferPricingSKUs  Page = "offer_pricing_skus"
	PageClients           Page = "clients"
	PageSuppliers         Page = "suppliers"
	PageCustomerSupport   Page = "customer_support"
	PageSalesReports      Page = "sales_reports"
	PageFinanceAccounting Page = "finance_accounting"
)

// pageLabels is the page catalogue, in dashboard order
var pageLabels = []struct {
	page  Page
	label string
}{
	{PageProductsList, "Products List"},
	{PageMarketingList, "Marketing List"},
	{PageOrderList, "Order List"},
	{PageMediaPlans, "Media Plans"},
	{PageOfferPricingSKUs, "Offer Pricing SKUs"},
	{PageClients, "Clients"},
	{PageSuppliers, "Suppliers"},
	{PageCustomerSupport, "Customer Support"},
	{PageSalesReports, "Sales Reports"},
	{PageFinanceAccounting, "Finance & Accounting"},
}

// PageInfo describes a page for API consumers
type PageInfo struct {
	Page  Page   `json:"page"`
	Label string `json:"label"`
}

// Pages returns the full page catalogue in dashboard order
func Pages() []PageInfo {
	out := make([]PageInfo, len(pageLabels))
	for i, p := range pageLabels {
		out[i] = PageInfo{Page: p.page, Label: p.label}
	}
	return out
}

// Valid reports whether p is one of the known pages
func (p Page) Valid() bool {
	for _, known := range pageLabels {
		if known.page == p {
			return true
		}
	}
	return false
}

// Label returns the human readable name of the page, or "" for unknown pages
func (p Page) Label() string {
	for _, known := range pageLabels {
		if known.page == p {
			return known.label
		}
	}
	return ""
}

func (p Page) String() string {
	return string(p)
}

// ParsePage converts a raw page name into a Page
func ParsePage(name string) (Page, error) {
	p := Page(name)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPage, name)
	}
	return p, nil
}

// Flags is the full set of CRUD flags for one page. Writes always replace all
// four values.
type Flags struct {
	CanView   bool `json:"can_view" db:"can_view"`
	CanEdit   bool `json:"can_edit" db:"can_edit"`
	CanCreate bool `json:"can_create" db:"can_create"`
	CanDelete bool `json:"can_delete" db:"can_delete"`
}

// None reports whether no flag is set
func (f Flags) None() bool {
	return !f.CanView && !f.CanEdit && !f.CanCreate && !f.CanDelete
}

// Entry is the wire shape of a single page permission
type Entry struct {
	Page Page `json:"page"`
	Flags
}

// SortEntries orders entries by page name so listings are stable
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Page < entries[j].Page
	})
}
