package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCanceled       Status = "canceled"
	StatusFailed         Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusReadyForPickup,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCanceled,
	StatusFailed,
}

func (s Status) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusReadyForPickup, StatusOutForDelivery,
		StatusDelivered, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCanceled || s == StatusFailed
}

// Transition names a business operation that moves an order between statuses.
type Transition string

const (
	TransitionConfirm            Transition = "confirm"
	TransitionMarkReadyForPickup Transition = "mark_ready_for_pickup"
	TransitionMoveOutForDelivery Transition = "move_out_for_delivery"
	TransitionCompleteDelivery   Transition = "complete_delivery"
	TransitionCancel             Transition = "cancel"
	TransitionFail               Transition = "fail"
)

// Transitions lists every transition.
var Transitions = []Transition{
	TransitionConfirm,
	TransitionMarkReadyForPickup,
	TransitionMoveOutForDelivery,
	TransitionCompleteDelivery,
	TransitionCancel,
	TransitionFail,
}

type rule struct {
	from []Status
	to   Status
}

// rules is the complete state table. Pairs not listed are invalid.
var rules = map[Transition]rule{
	TransitionConfirm:            {from: []Status{StatusPending}, to: StatusConfirmed},
	TransitionCancel:             {from: []Status{StatusPending, StatusConfirmed}, to: StatusCanceled},
	TransitionMarkReadyForPickup: {from: []Status{StatusConfirmed}, to: StatusReadyForPickup},
	TransitionMoveOutForDelivery: {from: []Status{StatusReadyForPickup}, to: StatusOutForDelivery},
	TransitionCompleteDelivery:   {from: []Status{StatusOutForDelivery}, to: StatusDelivered},
	TransitionFail: {
		from: []Status{StatusPending, StatusConfirmed, StatusReadyForPickup, StatusOutForDelivery},
		to:   StatusFailed,
	},
}

// IsValid reports whether t is a known transition.
func (t Transition) IsValid() bool {
	_, ok := rules[t]
	return ok
}

// Target returns the status t leads to.
func (t Transition) Target() Status {
	return rules[t].to
}

// AllowedFrom returns a copy of the source statuses t accepts.
func (t Transition) AllowedFrom() []Status {
	return append([]Status(nil), rules[t].from...)
}

// CanApply reports whether t is allowed from s.
func (t Transition) CanApply(s Status) bool {
	for _, from := range rules[t].from {
		if from == s {
			return true
		}
	}
	return false
}
