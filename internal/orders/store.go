package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/glebarez/sqlite"
	"github.com/nu7hatch/gouuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

type Store interface {
	Create(ctx context.Context, order entity.Order) (*entity.Order, error)
	UpdateStatus(ctx context.Context, listing string, status entity.OrderStatus) (*entity.Order, error)
	ListByWallet(ctx context.Context, wallet string, role entity.OrderRole) ([]entity.Order, error)
}

type orderRecord struct {
	Id             string `gorm:"primaryKey"`
	ListingAddress string `gorm:"index"`
	BuyerWallet    string `gorm:"index"`
	SellerWallet   string `gorm:"index"`
	Price          uint64
	BuyerEmail     string
	BuyerHandle    string
	SellerEmail    string
	SellerHandle   string
	Status         string `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (orderRecord) TableName() string {
	return "orders"
}

type store struct {
	db *gorm.DB
}

// OpenSqlite opens the order database. A single connection keeps in-memory databases
// shared across calls.
func OpenSqlite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&orderRecord{}); err != nil {
		return nil, fmt.Errorf("migrate orders: %w", err)
	}
	return store{db}, nil
}

// Create is idempotent per listing and buyer: while that pair has a pending order, the
// pending order is returned instead of a new one.
func (s store) Create(ctx context.Context, order entity.Order) (*entity.Order, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.Id = id.String()
	if order.Status == "" {
		order.Status = entity.OrderPendingShipment
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	var rec orderRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.
			Where(orderRecord{
				ListingAddress: order.ListingAddress,
				BuyerWallet:    order.BuyerWallet,
				Status:         string(entity.OrderPendingShipment),
			}).
			Attrs(toRecord(order)).
			FirstOrCreate(&rec).Error
	})
	if err != nil {
		return nil, err
	}

	created := fromRecord(rec)
	return &created, nil
}

// UpdateStatus moves the latest order of a listing forward. Repeating the current status is
// a no-op.
func (s store) UpdateStatus(ctx context.Context, listing string, status entity.OrderStatus) (*entity.Order, error) {
	var rec orderRecord
	err := s.db.WithContext(ctx).
		Where("listing_address = ?", listing).
		Order("created_at desc").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	current := entity.OrderStatus(rec.Status)
	if current == status {
		order := fromRecord(rec)
		return &order, nil
	}
	if current != entity.OrderPendingShipment || status != entity.OrderEscrowReleased {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, status)
	}

	rec.Status = string(status)
	rec.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return nil, err
	}

	order := fromRecord(rec)
	return &order, nil
}

func (s store) ListByWallet(ctx context.Context, wallet string, role entity.OrderRole) ([]entity.Order, error) {
	query := s.db.WithContext(ctx).Order("created_at desc")
	switch role {
	case entity.RoleBuyer:
		query = query.Where("buyer_wallet = ?", wallet)
	case entity.RoleSeller:
		query = query.Where("seller_wallet = ?", wallet)
	default:
		query = query.Where("buyer_wallet = ? OR seller_wallet = ?", wallet, wallet)
	}

	var recs []orderRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, err
	}

	orders := make([]entity.Order, len(recs))
	for i, rec := range recs {
		orders[i] = fromRecord(rec)
	}

	return orders, nil
}

func toRecord(o entity.Order) orderRecord {
	rec := orderRecord{
		Id:             o.Id,
		ListingAddress: o.ListingAddress,
		BuyerWallet:    o.BuyerWallet,
		SellerWallet:   o.SellerWallet,
		Price:          o.Price,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.BuyerContact != nil {
		rec.BuyerEmail, rec.BuyerHandle = o.BuyerContact.Email, o.BuyerContact.Handle
	}
	if o.SellerContact != nil {
		rec.SellerEmail, rec.SellerHandle = o.SellerContact.Email, o.SellerContact.Handle
	}
	return rec
}

func fromRecord(rec orderRecord) entity.Order {
	o := entity.Order{
		Id:             rec.Id,
		ListingAddress: rec.ListingAddress,
		BuyerWallet:    rec.BuyerWallet,
		SellerWallet:   rec.SellerWallet,
		Price:          rec.Price,
		Status:         entity.OrderStatus(rec.Status),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if c := (entity.Contact{Email: rec.BuyerEmail, Handle: rec.BuyerHandle}); !c.Empty() {
		o.BuyerContact = &c
	}
	if c := (entity.Contact{Email: rec.SellerEmail, Handle: rec.SellerHandle}); !c.Empty() {
		o.SellerContact = &c
	}
	return o
}
