package db

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/shopspring/decimal"
)

type FundingRecordFilters struct {
	States      []string
	Verticals   []string
	Sources     []string
	FiscalYears []int
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal

	Limit  int
	Offset int
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func fundingRecordFilterQuery(filters FundingRecordFilters) sq.SelectBuilder {
	q := psql.Select().
		From("funding_records").
		Join("organizations ON organizations.id = funding_records.organization_id").
		Join("verticals ON verticals.id = funding_records.vertical_id").
		Where("funding_records.deleted_at IS NULL")

	if len(filters.States) > 0 {
		q = q.Where(sq.Eq{"organizations.state": filters.States})
	}
	if len(filters.Verticals) > 0 {
		q = q.Where(sq.Eq{"verticals.name": filters.Verticals})
	}
	if len(filters.Sources) > 0 {
		q = q.Where(sq.Eq{"funding_records.source": filters.Sources})
	}
	if len(filters.FiscalYears) > 0 {
		q = q.Where(sq.Eq{"funding_records.fiscal_year": filters.FiscalYears})
	}
	if filters.MinAmount != nil {
		q = q.Where(sq.GtOrEq{"funding_records.amount": *filters.MinAmount})
	}
	if filters.MaxAmount != nil {
		q = q.Where(sq.LtOrEq{"funding_records.amount": *filters.MaxAmount})
	}

	return q
}

// ListFundingRecords applies the dynamic table filters and returns one page
// of records plus the total match count.
func (db Database) ListFundingRecords(filters FundingRecordFilters) ([]models.FundingRecord, int64, error) {
	countSql, countArgs, err := fundingRecordFilterQuery(filters).Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if tx := db.Orm.Raw(countSql, countArgs...).Scan(&total); tx.Error != nil {
		return nil, 0, tx.Error
	}

	q := fundingRecordFilterQuery(filters).
		Columns("funding_records.id").
		OrderBy("funding_records.fiscal_year DESC", "funding_records.id ASC")
	if filters.Limit > 0 {
		q = q.Limit(uint64(filters.Limit)).Offset(uint64(filters.Offset))
	}
	idSql, idArgs, err := q.ToSql()
	if err != nil {
		return nil, 0, err
	}

	var ids []uint
	if tx := db.Orm.Raw(idSql, idArgs...).Scan(&ids); tx.Error != nil {
		return nil, 0, tx.Error
	}
	if len(ids) == 0 {
		return nil, total, nil
	}

	var records []models.FundingRecord
	tx := db.Orm.Preload("Organization").Preload("Vertical").Preload("GrantType").
		Where("id IN ?", ids).
		Order("fiscal_year desc, id asc").
		Find(&records)
	if tx.Error != nil {
		return nil, 0, tx.Error
	}
	return records, total, nil
}

type SummaryRow struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}

func (db Database) SummarizeByVertical() ([]SummaryRow, error) {
	var rows []SummaryRow
	tx := db.Orm.Model(&models.FundingRecord{}).
		Select("verticals.name as name, SUM(funding_records.amount) as total, COUNT(*) as count").
		Joins("JOIN verticals ON verticals.id = funding_records.vertical_id").
		Group("verticals.name").
		Order("total desc").
		Scan(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return rows, nil
}

func (db Database) SummarizeBySource() ([]SummaryRow, error) {
	var rows []SummaryRow
	tx := db.Orm.Model(&models.FundingRecord{}).
		Select("source as name, SUM(amount) as total, COUNT(*) as count").
		Group("source").
		Order("total desc").
		Scan(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return rows, nil
}

func (db Database) SummarizeByFiscalYear() ([]SummaryRow, error) {
	var rows []SummaryRow
	tx := db.Orm.Model(&models.FundingRecord{}).
		Select("fiscal_year::text as name, SUM(amount) as total, COUNT(*) as count").
		Group("fiscal_year").
		Order("name asc").
		Scan(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return rows, nil
}
