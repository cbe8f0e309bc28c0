package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
)

// Postgres stores events in one table through gorm.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects with dsn and migrates the events table.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&model.Event{}); err != nil {
		return nil, fmt.Errorf("migrate events: %w", err)
	}
	appLog.Info("postgres store ready")
	return &Postgres{db: db}, nil
}

func (p *Postgres) List(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	err := p.db.WithContext(ctx).Order("start_date, start_time, created_at").Find(&events).Error
	return events, err
}

func (p *Postgres) Get(ctx context.Context, id string) (model.Event, error) {
	var ev model.Event
	err := p.db.WithContext(ctx).First(&ev, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

func (p *Postgres) Create(ctx context.Context, events ...model.Event) ([]model.Event, error) {
	rows := stamp(events, time.Now().UTC())
	if len(rows) == 0 {
		return rows, nil
	}
	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("insert events: %w", err)
	}
	return rows, nil
}

func (p *Postgres) Update(ctx context.Context, ev model.Event) (model.Event, error) {
	var out model.Event
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.Event
		if err := tx.First(&cur, "id = ?", ev.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		ev.CreatedAt = cur.CreatedAt
		ev.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&ev).Error; err != nil {
			return fmt.Errorf("update event %s: %w", ev.ID, err)
		}
		out = ev
		return nil
	})
	return out, err
}

func (p *Postgres) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Event{}).Error
}

// Replace swaps a series in one transaction: either every old row is gone
// and every new row exists, or nothing changed.
func (p *Postgres) Replace(ctx context.Context, deleteIDs []string, create []model.Event) ([]model.Event, error) {
	rows := stamp(create, time.Now().UTC())
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(deleteIDs) > 0 {
			if err := tx.Where("id IN ?", deleteIDs).Delete(&model.Event{}).Error; err != nil {
				return fmt.Errorf("delete series: %w", err)
			}
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert series: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
