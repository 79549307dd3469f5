package ingestion

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed nasbo_data.yaml
var nasboRaw []byte

type nasboEntry struct {
	State        string `yaml:"state"`
	Organization string `yaml:"organization"`
	Category     string `yaml:"category"`
	Program      string `yaml:"program"`
	Amount       int64  `yaml:"amount"`
	FiscalYear   int    `yaml:"fiscal_year"`
}

type nasboDataset struct {
	Entries []nasboEntry `yaml:"entries"`
}

func loadNASBODataset() (*nasboDataset, error) {
	var dataset nasboDataset
	if err := yaml.Unmarshal(nasboRaw, &dataset); err != nil {
		return nil, fmt.Errorf("parse nasbo dataset: %w", err)
	}
	return &dataset, nil
}

// IngestNASBO loads state-level expenditure figures from the bundled NASBO
// dataset. Unlike the API-backed sources the vertical comes straight from the
// dataset category instead of the keyword classifier.
func (p *Pipeline) IngestNASBO(ctx context.Context, tracker *Tracker, state string) error {
	dataset, err := loadNASBODataset()
	if err != nil {
		return err
	}

	dedup, err := NewDeduper(p.db)
	if err != nil {
		return err
	}
	orgs := newOrgResolver(p.db)

	tracker.SetTotalPages(1)
	tracker.AdvancePage(ctx, 1, "loading NASBO state expenditure data")

	for _, entry := range dataset.Entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if state != "" && state != "ALL" && entry.State != state {
			continue
		}
		amount := decimal.NewFromInt(entry.Amount)

		org, err := orgs.resolve(entry.Organization, entry.State)
		if err != nil {
			return err
		}

		if dedup.Seen(org.ID, amount, entry.FiscalYear, SourceTagNASBO) {
			tracker.RecordSkipped()
			continue
		}

		vertical, err := p.db.GetOrCreateVertical(entry.Category)
		if err != nil {
			return err
		}

		record := models.FundingRecord{
			OrganizationID: org.ID,
			VerticalID:     vertical.ID,
			Amount:         amount,
			FiscalYear:     entry.FiscalYear,
			Status:         "Appropriated",
			Source:         SourceTagNASBO,
			Notes:          entry.Program,
		}
		if err := p.db.CreateFundingRecord(&record); err != nil {
			return fmt.Errorf("create funding record: %w", err)
		}

		dedup.Mark(org.ID, amount, entry.FiscalYear, SourceTagNASBO)
		tracker.RecordInserted()
	}

	return nil
}

func numberToDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
