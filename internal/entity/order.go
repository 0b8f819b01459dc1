package entity

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderPendingShipment OrderStatus = "PENDING_SHIPMENT"
	OrderEscrowReleased  OrderStatus = "ESCROW_RELEASED"
)

var ErrUnknownOrderStatus = errors.New("unknown order status")

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderPendingShipment, OrderEscrowReleased:
		return OrderStatus(s), nil
	}
	return "", ErrUnknownOrderStatus
}

// Order is the off-ledger contact exchange record. It can lag the ledger.
type Order struct {
	Id             string      `json:"id"`
	ListingAddress string      `json:"listingAddress"`
	BuyerWallet    string      `json:"buyerWallet"`
	SellerWallet   string      `json:"sellerWallet"`
	Price          uint64      `json:"price"`
	BuyerContact   *Contact    `json:"buyerContact,omitempty"`
	SellerContact  *Contact    `json:"sellerContact,omitempty"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

type Contact struct {
	Email  string `json:"email,omitempty"`
	Handle string `json:"handle,omitempty"`
}

func (c Contact) Empty() bool {
	return c.Email == "" && c.Handle == ""
}

type OrderRole string

const (
	RoleBuyer  OrderRole = "buyer"
	RoleSeller OrderRole = "seller"
	RoleAny    OrderRole = ""
)
