package db

import (
	"errors"
	"time"

	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"gorm.io/gorm"
)

type Database struct {
	Orm *gorm.DB
}

func (db Database) Initialize() error {
	return db.Orm.AutoMigrate(
		&models.Organization{},
		&models.Vertical{},
		&models.GrantType{},
		&models.FundingRecord{},
		&models.SubAward{},
		&models.FetchProgressSession{},
		&models.RepAssignment{},
		&models.SavedSearch{},
		&models.SavedSubawardSearch{},
		&models.AdminAuditLog{},
	)
}

// SeedVerticals inserts any missing vertical rows for the given names.
func (db Database) SeedVerticals(names []string) error {
	for _, name := range names {
		vertical := models.Vertical{Name: name}
		tx := db.Orm.Where(models.Vertical{Name: name}).FirstOrCreate(&vertical)
		if tx.Error != nil {
			return tx.Error
		}
	}
	return nil
}

// SeedGrantTypes inserts any missing grant type rows for the given
// code -> name mapping.
func (db Database) SeedGrantTypes(types map[string]string) error {
	for code, name := range types {
		grantType := models.GrantType{Code: code, Name: name}
		tx := db.Orm.Where(models.GrantType{Code: code}).FirstOrCreate(&grantType)
		if tx.Error != nil {
			return tx.Error
		}
	}
	return nil
}

// --- organizations

func (db Database) GetOrganizationByNameAndState(name, state string) (*models.Organization, error) {
	var org models.Organization
	tx := db.Orm.Where("name = ? AND state = ?", name, state).First(&org)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &org, nil
}

func (db Database) CreateOrganization(org *models.Organization) error {
	return db.Orm.Create(org).Error
}

// GetOrCreateOrganization looks an organization up by its (name, state)
// identity and creates it on first sighting.
func (db Database) GetOrCreateOrganization(name, state string) (*models.Organization, error) {
	org, err := db.GetOrganizationByNameAndState(name, state)
	if err != nil {
		return nil, err
	}
	if org != nil {
		return org, nil
	}

	org = &models.Organization{Name: name, State: state}
	if err := db.CreateOrganization(org); err != nil {
		return nil, err
	}
	return org, nil
}

func (db Database) GetOrganization(id uint) (*models.Organization, error) {
	var org models.Organization
	tx := db.Orm.First(&org, id)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &org, nil
}

func (db Database) ListOrganizations(state, vertical, search string, limit, offset int) ([]models.Organization, error) {
	var orgs []models.Organization
	tx := db.Orm.Model(&models.Organization{})
	if state != "" {
		tx = tx.Where("state = ?", state)
	}
	if vertical != "" {
		tx = tx.Where("organizations.id IN (?)", db.Orm.Model(&models.FundingRecord{}).
			Select("funding_records.organization_id").
			Joins("JOIN verticals ON verticals.id = funding_records.vertical_id").
			Where("verticals.name = ?", vertical))
	}
	if search != "" {
		tx = tx.Where("name ILIKE ?", "%"+search+"%")
	}
	if limit > 0 {
		tx = tx.Limit(limit).Offset(offset)
	}
	tx = tx.Order("name asc").Find(&orgs)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return orgs, nil
}

// --- taxonomy

func (db Database) GetVerticalByName(name string) (*models.Vertical, error) {
	var vertical models.Vertical
	tx := db.Orm.Where("name = ?", name).First(&vertical)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &vertical, nil
}

func (db Database) GetOrCreateVertical(name string) (*models.Vertical, error) {
	var vertical models.Vertical
	tx := db.Orm.Where(models.Vertical{Name: name}).FirstOrCreate(&vertical)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &vertical, nil
}

func (db Database) ListVerticals() ([]models.Vertical, error) {
	var verticals []models.Vertical
	tx := db.Orm.Order("name asc").Find(&verticals)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return verticals, nil
}

// GetGrantType matches by code first, name second.
func (db Database) GetGrantType(code, name string) (*models.GrantType, error) {
	var grantType models.GrantType
	if code != "" {
		tx := db.Orm.Where("code = ?", code).First(&grantType)
		if tx.Error == nil {
			return &grantType, nil
		}
		if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, tx.Error
		}
	}
	if name != "" {
		tx := db.Orm.Where("name ILIKE ?", name).First(&grantType)
		if tx.Error == nil {
			return &grantType, nil
		}
		if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, tx.Error
		}
	}
	return nil, nil
}

// --- funding records

func (db Database) CreateFundingRecord(record *models.FundingRecord) error {
	return db.Orm.Create(record).Error
}

type FundingRecordKey struct {
	OrganizationID uint
	Amount         string
	FiscalYear     int
	Source         string
}

// ListFundingRecordKeys returns the dedup key columns of every stored
// record; the ingestion pass rebuilds its seen-set from this at run start.
func (db Database) ListFundingRecordKeys() ([]FundingRecordKey, error) {
	var keys []FundingRecordKey
	tx := db.Orm.Model(&models.FundingRecord{}).
		Select("organization_id, amount::text as amount, fiscal_year, source").
		Scan(&keys)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return keys, nil
}

// ListFundingRecordsWithExternalRef returns the records of a source carrying
// an upstream award identifier, for the sub-award ingestion pass. A non-empty
// state narrows the result to records of organizations in that state.
func (db Database) ListFundingRecordsWithExternalRef(source, state string) ([]models.FundingRecord, error) {
	var records []models.FundingRecord
	tx := db.Orm.Where("source = ? AND external_ref <> ''", source)
	if state != "" && state != "ALL" {
		tx = tx.Joins("JOIN organizations ON organizations.id = funding_records.organization_id").
			Where("organizations.state = ?", state)
	}
	tx = tx.Find(&records)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return records, nil
}

func (db Database) ListFundingRecordsByOrganization(orgID uint) ([]models.FundingRecord, error) {
	var records []models.FundingRecord
	tx := db.Orm.Preload("Vertical").Preload("GrantType").
		Where("organization_id = ?", orgID).
		Order("fiscal_year desc").
		Find(&records)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return records, nil
}

func (db Database) GetFundingRecord(id uint) (*models.FundingRecord, error) {
	var record models.FundingRecord
	tx := db.Orm.Preload("Organization").Preload("Vertical").Preload("GrantType").First(&record, id)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &record, nil
}

// --- sub-awards

func (db Database) CreateSubAward(subAward *models.SubAward) error {
	return db.Orm.Create(subAward).Error
}

func (db Database) ListSubAwardsByFundingRecord(recordID uint) ([]models.SubAward, error) {
	var subAwards []models.SubAward
	tx := db.Orm.Preload("RecipientOrg").Where("funding_record_id = ?", recordID).Find(&subAwards)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return subAwards, nil
}

func (db Database) GetSubAwardBySubawardID(subawardID string) (*models.SubAward, error) {
	var subAward models.SubAward
	tx := db.Orm.Where("subaward_id = ?", subawardID).First(&subAward)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &subAward, nil
}

// --- fetch progress sessions

// ReplaceProgressSession drops any previous snapshot for the session id and
// stores the fresh one.
func (db Database) ReplaceProgressSession(session *models.FetchProgressSession) error {
	tx := db.Orm.Unscoped().Where("session_id = ?", session.SessionID).Delete(&models.FetchProgressSession{})
	if tx.Error != nil {
		return tx.Error
	}
	return db.Orm.Create(session).Error
}

func (db Database) UpdateProgressSession(session *models.FetchProgressSession) error {
	return db.Orm.Save(session).Error
}

func (db Database) GetProgressSession(sessionID string) (*models.FetchProgressSession, error) {
	var session models.FetchProgressSession
	tx := db.Orm.Where("session_id = ?", sessionID).First(&session)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &session, nil
}

func (db Database) ListProgressSessions() ([]models.FetchProgressSession, error) {
	var sessions []models.FetchProgressSession
	tx := db.Orm.Order("created_at desc").Find(&sessions)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return sessions, nil
}

// ClearFinishedProgressSessions removes completed and failed session
// snapshots; running sessions are left alone.
func (db Database) ClearFinishedProgressSessions() (int64, error) {
	tx := db.Orm.Unscoped().
		Where("status IN ?", []models.FetchStatus{models.FetchStatusCompleted, models.FetchStatusFailed}).
		Delete(&models.FetchProgressSession{})
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

// --- rep assignments

func (db Database) UpsertRepAssignment(assignment *models.RepAssignment) error {
	existing := models.RepAssignment{}
	tx := db.Orm.Where("organization_id = ?", assignment.OrganizationID).First(&existing)
	if tx.Error != nil {
		if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return tx.Error
		}
		assignment.AssignedAt = time.Now()
		return db.Orm.Create(assignment).Error
	}

	existing.UserID = assignment.UserID
	existing.AssignedBy = assignment.AssignedBy
	existing.AssignedAt = time.Now()
	existing.Notes = assignment.Notes
	*assignment = existing
	return db.Orm.Save(&existing).Error
}

func (db Database) GetRepAssignment(orgID uint) (*models.RepAssignment, error) {
	var assignment models.RepAssignment
	tx := db.Orm.Where("organization_id = ?", orgID).First(&assignment)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, tx.Error
	}
	return &assignment, nil
}

func (db Database) DeleteRepAssignment(orgID uint) error {
	return db.Orm.Where("organization_id = ?", orgID).Delete(&models.RepAssignment{}).Error
}

// --- saved searches

func (db Database) CreateSavedSearch(search *models.SavedSearch) error {
	return db.Orm.Create(search).Error
}

func (db Database) ListSavedSearches(userID string) ([]models.SavedSearch, error) {
	var searches []models.SavedSearch
	tx := db.Orm.Where("user_id = ?", userID).Order("created_at desc").Find(&searches)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return searches, nil
}

func (db Database) DeleteSavedSearch(id uint, userID string) error {
	return db.Orm.Where("id = ? AND user_id = ?", id, userID).Delete(&models.SavedSearch{}).Error
}

func (db Database) CreateSavedSubawardSearch(search *models.SavedSubawardSearch) error {
	return db.Orm.Create(search).Error
}

func (db Database) ListSavedSubawardSearches(userID string) ([]models.SavedSubawardSearch, error) {
	var searches []models.SavedSubawardSearch
	tx := db.Orm.Where("user_id = ?", userID).Order("created_at desc").Find(&searches)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return searches, nil
}

func (db Database) DeleteSavedSubawardSearch(id uint, userID string) error {
	return db.Orm.Where("id = ? AND user_id = ?", id, userID).Delete(&models.SavedSubawardSearch{}).Error
}

// --- audit log

func (db Database) CreateAuditLog(log *models.AdminAuditLog) error {
	return db.Orm.Create(log).Error
}

// PurgeAll deletes all aggregated data in dependency order and returns the
// per-table deletion counts. Each table is deleted independently; a failure
// partway through leaves the earlier tables empty and the later ones intact.
func (db Database) PurgeAll() (map[string]int64, error) {
	counts := make(map[string]int64)

	steps := []struct {
		name  string
		model any
	}{
		{"sub_awards", &models.SubAward{}},
		{"funding_records", &models.FundingRecord{}},
		{"rep_assignments", &models.RepAssignment{}},
		{"organizations", &models.Organization{}},
		{"fetch_progress_sessions", &models.FetchProgressSession{}},
		{"saved_searches", &models.SavedSearch{}},
		{"saved_subaward_searches", &models.SavedSubawardSearch{}},
	}

	for _, step := range steps {
		tx := db.Orm.Unscoped().Where("1 = 1").Delete(step.model)
		if tx.Error != nil {
			return counts, tx.Error
		}
		counts[step.name] = tx.RowsAffected
	}

	return counts, nil
}
