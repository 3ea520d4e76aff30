package order

// Status is the closed enumeration of order states observed at the venue.
type Status string

// Order statuses. Filled, Canceled, Rejected and DoneForDay are terminal.
const (
	StatusNew             Status = "New"
	StatusPendingNew      Status = "PendingNew"
	StatusPartiallyFilled Status = "PartiallyFilled"
	StatusFilled          Status = "Filled"
	StatusCanceled        Status = "Canceled"
	StatusPendingCancel   Status = "PendingCancel"
	StatusRejected        Status = "Rejected"
	StatusPendingReplace  Status = "PendingReplace"
	StatusDoneForDay      Status = "DoneForDay"
)

var allStatuses = []Status{
	StatusNew,
	StatusPendingNew,
	StatusPartiallyFilled,
	StatusFilled,
	StatusCanceled,
	StatusPendingCancel,
	StatusRejected,
	StatusPendingReplace,
	StatusDoneForDay,
}

// Statuses returns every member of the enumeration.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Valid reports whether s belongs to the enumeration.
func (s Status) Valid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal reports whether s is final for an order. Transient statuses may still change and
// are eligible for re-query.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusDoneForDay:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
