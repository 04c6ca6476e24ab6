// Package store models configuration items held by the management service
// and the transport used to fetch and persist them.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Item is a configuration item handle as fetched from the service. Items
// travel by value through the reconciler so a failed pass can never corrupt
// the fetched copy.
type Item struct {
	ID         int64
	Name       string
	Revision   int
	PackageXML string
}

// Filter narrows the fetched item set. The zero value selects visible,
// unexpired, latest-revision items, which is what reconciliation wants.
type Filter struct {
	IncludeHidden  bool
	IncludeExpired bool
	NamePrefix     string
}

// predicate renders the filter as an OData $filter expression.
func (f Filter) predicate() string {
	conditions := []string{"IsLatest eq true"}
	if !f.IncludeHidden {
		conditions = append(conditions, "IsHidden eq false")
	}
	if !f.IncludeExpired {
		conditions = append(conditions, "IsExpired eq false")
	}
	if f.NamePrefix != "" {
		literal := strings.ReplaceAll(f.NamePrefix, "'", "''")
		conditions = append(conditions, fmt.Sprintf("startswith(LocalizedDisplayName,'%s')", literal))
	}
	return strings.Join(conditions, " and ")
}

// Service fetches and persists configuration items.
type Service interface {
	Items(ctx context.Context, filter Filter) ([]Item, error)
	Persist(ctx context.Context, item Item) error
}

// FindByName returns the item whose display name matches exactly. Matching
// is case-sensitive; "check bitlocker" does not find "Check BitLocker".
func FindByName(items []Item, name string) (Item, bool) {
	for _, item := range items {
		if item.Name == name {
			return item, true
		}
	}
	return Item{}, false
}
