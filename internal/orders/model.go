package orders

import "time"

// Order statuses follow the shop-floor lifecycle.
const (
	StatusDraft      = "draft"
	StatusReleased   = "released"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// Order is a production order. tenant_id is never part of the model; the
// statement pipeline stamps it on insert and filters it on read.
type Order struct {
	ID        int64      `json:"id"`
	OrderNo   string     `json:"order_no"`
	StyleNo   string     `json:"style_no"`
	Quantity  int64      `json:"quantity"`
	Status    string     `json:"status"`
	FactoryID int64      `json:"factory_id,omitempty"`
	CreatedBy int64      `json:"created_by"`
	Remark    string     `json:"remark,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// validTransitions encodes the allowed status moves.
var validTransitions = map[string][]string{
	StatusDraft:      {StatusReleased, StatusCancelled},
	StatusReleased:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDone, StatusCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
