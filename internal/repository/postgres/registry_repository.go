package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aklineservice/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// registryRow is the GORM model backing the `stocks` table.
type registryRow struct {
	Code        string     `gorm:"column:code;primaryKey"`
	Name        string     `gorm:"column:name"`
	Type        string     `gorm:"column:type"`
	ListDate    *time.Time `gorm:"column:list_date"`
	Pinyin      string     `gorm:"column:pinyin"`
	PinyinShort string     `gorm:"column:pinyin_short"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (registryRow) TableName() string { return "stocks" }

func (row registryRow) toEntry() domain.UniverseEntry {
	return domain.UniverseEntry{
		Symbol:         domain.Symbol(row.Code),
		Name:           row.Name,
		Type:           domain.SymbolType(row.Type),
		ListDate:       row.ListDate,
		Pinyin:         row.Pinyin,
		PinyinInitials: row.PinyinShort,
	}
}

func fromEntry(e domain.UniverseEntry) registryRow {
	return registryRow{
		Code:        string(e.Symbol),
		Name:        e.Name,
		Type:        string(e.Type),
		ListDate:    e.ListDate,
		Pinyin:      e.Pinyin,
		PinyinShort: e.PinyinInitials,
	}
}

// RegistryRepository implements the universe registry over GORM.
type RegistryRepository struct {
	db *gorm.DB
}

// NewRegistryRepository constructs a RegistryRepository.
func NewRegistryRepository(db *gorm.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// GetBySymbol retrieves a single registry entry, or nil if unknown.
func (r *RegistryRepository) GetBySymbol(ctx context.Context, symbol domain.Symbol) (*domain.UniverseEntry, error) {
	var row registryRow
	err := r.db.WithContext(ctx).Where("code = ?", string(symbol)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registry entry %s: %w", symbol, err)
	}
	entry := row.toEntry()
	return &entry, nil
}

// BulkUpsert inserts or updates registry entries in batches of 100,
// conflict key `code`.
func (r *RegistryRepository) BulkUpsert(ctx context.Context, entries []domain.UniverseEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin registry upsert tx: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	const batchSize = 100
	for i := 0; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		rows := make([]registryRow, 0, end-i)
		for _, e := range entries[i:end] {
			rows = append(rows, fromEntry(e))
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "type", "list_date", "pinyin", "pinyin_short"}),
		}).Create(&rows)

		if result.Error != nil {
			tx.Rollback()
			return fmt.Errorf("upsert registry batch: %w", result.Error)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit registry upsert: %w", err)
	}
	return nil
}

// All returns every registry entry, used by the backfill driver to build
// its symbol universe.
func (r *RegistryRepository) All(ctx context.Context) ([]domain.UniverseEntry, error) {
	var rows []registryRow
	if err := r.db.WithContext(ctx).Order("code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list registry entries: %w", err)
	}
	out := make([]domain.UniverseEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntry())
	}
	return out, nil
}
