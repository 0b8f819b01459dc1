package event

type Type string

const (
	PurchaseConfirmed Type = "PurchaseConfirmed"
	EscrowReleased    Type = "EscrowReleased"
	EscrowRefunded    Type = "EscrowRefunded"
	OrderWriteFailed  Type = "OrderWriteFailed"
	SnapshotReplaced  Type = "SnapshotReplaced"
)

// OrderFailure is the payload of OrderWriteFailed.
type OrderFailure struct {
	Listing string
	Action  string
	Err     error
}
