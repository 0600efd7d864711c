package ticket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/relaydesk/internal/address"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects the configured database and migrates the schema.
// Supported drivers: sqlite (default) and postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "relaydesk.db"
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := db.AutoMigrate(&Ticket{}, &MessageRecord{}, &NativeRef{}); err != nil {
		return nil, fmt.Errorf("migrate ticket store: %w", err)
	}
	return db, nil
}

// GormStore implements Store on gorm. Create-or-open atomicity is
// enforced with a per-address lock in front of the transaction; the
// store is the single writer for its database file, so the lock is
// sufficient to serialize the check-then-create.
type GormStore struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *GormStore) addressLock(addr string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[addr]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[addr] = lock
	}
	return lock
}

func (s *GormStore) CreateOrOpen(ctx context.Context, addr address.Address, category string) (*Ticket, error) {
	lock := s.addressLock(addr.String())
	lock.Lock()
	defer lock.Unlock()

	var out *Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Ticket
		err := tx.Where("address = ? AND category = ? AND status = ?", addr.String(), category, StatusOpen).
			First(&existing).Error
		if err == nil {
			out = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		created := Ticket{
			Address:   addr.String(),
			Messenger: string(addr.Channel),
			Category:  category,
			Status:    StatusOpen,
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		out = &created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create or open ticket: %w", err)
	}
	return out, nil
}

func (s *GormStore) FindOpen(ctx context.Context, addr address.Address, category string) (*Ticket, error) {
	var t Ticket
	err := s.db.WithContext(ctx).
		Where("address = ? AND category = ? AND status = ?", addr.String(), category, StatusOpen).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open ticket: %w", err)
	}
	return &t, nil
}

func (s *GormStore) FindByID(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	err := s.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket %d: %w", id, err)
	}
	return &t, nil
}

func (s *GormStore) SetStatus(ctx context.Context, id int64, status Status) error {
	res := s.db.WithContext(ctx).Model(&Ticket{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set ticket %d status: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetStatusByAddress(ctx context.Context, addr address.Address, status Status) error {
	err := s.db.WithContext(ctx).Model(&Ticket{}).
		Where("address = ?", addr.String()).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set status for %s: %w", addr, err)
	}
	return nil
}

func (s *GormStore) ListOpen(ctx context.Context, categories []string) ([]Ticket, error) {
	q := s.db.WithContext(ctx).Where("status = ?", StatusOpen)
	if len(categories) > 0 {
		q = q.Where("category IN ?", categories)
	}
	var tickets []Ticket
	if err := q.Order("id").Find(&tickets).Error; err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	return tickets, nil
}

func (s *GormStore) CloseIdle(ctx context.Context, olderThan time.Time) ([]int64, error) {
	var stale []Ticket
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", StatusOpen, olderThan).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("find idle tickets: %w", err)
	}
	ids := make([]int64, 0, len(stale))
	for _, t := range stale {
		ids = append(ids, t.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = s.db.WithContext(ctx).Model(&Ticket{}).
		Where("id IN ?", ids).
		Update("status", StatusClosed).Error
	if err != nil {
		return nil, fmt.Errorf("close idle tickets: %w", err)
	}
	return ids, nil
}

func (s *GormStore) IsBanned(ctx context.Context, addr address.Address) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Ticket{}).
		Where("address = ? AND status = ?", addr.String(), StatusBanned).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ban lookup for %s: %w", addr, err)
	}
	return count > 0, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, record MessageRecord) error {
	if record.ID == "" {
		record.ID = "msg_" + uuid.NewString()
	}
	if record.SentAt.IsZero() {
		record.SentAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("append message for ticket %d: %w", record.TicketID, err)
	}
	return nil
}

// Replay returns a ticket's messages ordered by timestamp. Read interface
// for conversation replay; the relay itself only appends.
func (s *GormStore) Replay(ctx context.Context, ticketID int64) ([]MessageRecord, error) {
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("sent_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("replay ticket %d: %w", ticketID, err)
	}
	return records, nil
}

func (s *GormStore) BindNativeMessage(ctx context.Context, nativeID string, ticketID int64) error {
	if nativeID == "" {
		return fmt.Errorf("native id is required")
	}
	ref := NativeRef{NativeID: nativeID, TicketID: ticketID}
	// Save instead of Create: re-binding the same native id is harmless.
	if err := s.db.WithContext(ctx).Save(&ref).Error; err != nil {
		return fmt.Errorf("bind native message %s: %w", nativeID, err)
	}
	return nil
}

func (s *GormStore) ResolveNativeMessage(ctx context.Context, nativeID string) (int64, error) {
	var ref NativeRef
	err := s.db.WithContext(ctx).First(&ref, "native_id = ?", nativeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve native message %s: %w", nativeID, err)
	}
	return ref.TicketID, nil
}
