package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/avstrong/roomshare/internal/roomshare"
)

var ErrUnknownDriver = errors.New("unknown journal driver")

type Config struct {
	Driver                 string
	DSN                    string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
}

// entry is one committed engine operation.
type entry struct {
	Seq         int64     `gorm:"primaryKey;autoIncrement"`
	Kind        string    `gorm:"size:32;not null"`
	Caller      string    `gorm:"size:128;not null"`
	RoomID      int       `gorm:"index"`
	BookingID   int
	Name        string    `gorm:"size:256"`
	Location    string    `gorm:"size:256"`
	Price       int64
	CheckIn     int
	CheckOut    int
	Payment     int64
	Active      bool
	HorizonDays int
	At          time.Time `gorm:"not null"`
}

func (entry) TableName() string {
	return "roomshare_operations"
}

func fromOperation(op *roomshare.Operation) entry {
	return entry{
		Kind:        string(op.Kind),
		Caller:      string(op.Caller),
		RoomID:      int(op.RoomID),
		BookingID:   int(op.BookingID),
		Name:        op.Name,
		Location:    op.Location,
		Price:       op.Price,
		CheckIn:     int(op.Dates.CheckIn),
		CheckOut:    int(op.Dates.CheckOut),
		Payment:     op.Payment,
		Active:      op.Active,
		HorizonDays: op.HorizonDays,
		At:          op.At,
	}
}

func (e *entry) operation() roomshare.Operation {
	return roomshare.Operation{
		Seq:       e.Seq,
		Kind:      roomshare.OperationKind(e.Kind),
		Caller:    roomshare.Identity(e.Caller),
		RoomID:    roomshare.RoomID(e.RoomID),
		BookingID: roomshare.BookingID(e.BookingID),
		Name:      e.Name,
		Location:  e.Location,
		Price:     e.Price,
		Dates: roomshare.DayRange{
			CheckIn:  roomshare.Day(e.CheckIn),
			CheckOut: roomshare.Day(e.CheckOut),
		},
		Payment:     e.Payment,
		Active:      e.Active,
		HorizonDays: e.HorizonDays,
		At:          e.At,
	}
}

// Open connects to the configured database.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Driver, ErrUnknownDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return db, nil
}

// Store is an append-only operation log.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores op and sets op.Seq to its position in the log.
func (s *Store) Append(ctx context.Context, op *roomshare.Operation) error {
	e := fromOperation(op)

	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("insert operation %s: %w", op.Kind, err)
	}

	op.Seq = e.Seq

	return nil
}

// Load returns every stored operation in append order.
func (s *Store) Load(ctx context.Context) ([]roomshare.Operation, error) {
	var entries []entry

	if err := s.db.WithContext(ctx).Order("seq asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load operations: %w", err)
	}

	ops := make([]roomshare.Operation, 0, len(entries))
	for i := range entries {
		ops = append(ops, entries[i].operation())
	}

	return ops, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	return sqlDB.Close()
}
