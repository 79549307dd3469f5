package ingestion

import (
	"fmt"

	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/shopspring/decimal"
)

// Deduper skips funding records whose (organization, amount, fiscal year,
// source) key was already inserted, either earlier in the same run or in a
// previous run. The seen-set is rebuilt from storage at the start of every
// run, so idempotency holds only to the precision of this key: two distinct
// awards with the same rounded amount in the same year collide.
type Deduper struct {
	seen map[string]struct{}
}

func NewDeduper(database db.Database) (*Deduper, error) {
	keys, err := database.ListFundingRecordKeys()
	if err != nil {
		return nil, fmt.Errorf("list funding record keys: %w", err)
	}

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		amount, err := decimal.NewFromString(key.Amount)
		if err != nil {
			continue
		}
		seen[dedupKey(key.OrganizationID, amount, key.FiscalYear, key.Source)] = struct{}{}
	}

	return &Deduper{seen: seen}, nil
}

func dedupKey(orgID uint, amount decimal.Decimal, fiscalYear int, source string) string {
	return fmt.Sprintf("%d|%s|%d|%s", orgID, amount.StringFixed(2), fiscalYear, source)
}

func (d *Deduper) Seen(orgID uint, amount decimal.Decimal, fiscalYear int, source string) bool {
	_, ok := d.seen[dedupKey(orgID, amount, fiscalYear, source)]
	return ok
}

func (d *Deduper) Mark(orgID uint, amount decimal.Decimal, fiscalYear int, source string) {
	d.seen[dedupKey(orgID, amount, fiscalYear, source)] = struct{}{}
}

// orgResolver caches (name, state) -> organization lookups for one run on
// top of the database's get-or-create.
type orgResolver struct {
	db    db.Database
	cache map[string]*models.Organization
}

func newOrgResolver(database db.Database) *orgResolver {
	return &orgResolver{
		db:    database,
		cache: make(map[string]*models.Organization),
	}
}

func (r *orgResolver) resolve(name, state string) (*models.Organization, error) {
	cacheKey := name + "|" + state
	if org, ok := r.cache[cacheKey]; ok {
		return org, nil
	}

	org, err := r.db.GetOrCreateOrganization(name, state)
	if err != nil {
		return nil, err
	}
	r.cache[cacheKey] = org
	return org, nil
}
