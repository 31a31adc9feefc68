package orders

var allStatuses = []string{
	StatusPending,
	StatusInventoryReserved,
	StatusPaid,
	StatusConfirmed,
	StatusPaymentFailed,
}

// happy path order; PAYMENT_FAILED sits outside it.
var rank = map[string]int{
	StatusPending:           0,
	StatusInventoryReserved: 1,
	StatusPaid:              2,
	StatusConfirmed:         3,
}

// CanTransition reports whether an order in status from may be written with
// status to. Re-applying the current status is allowed so redeliveries only
// refresh updated_at.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	if to == StatusPaymentFailed {
		_, onPath := rank[from]
		return onPath && from != StatusConfirmed
	}
	rf, okFrom := rank[from]
	rt, okTo := rank[to]
	return okFrom && okTo && rt == rf+1
}

// Predecessors lists every status from which to is reachable in one write.
func Predecessors(to string) []string {
	var out []string
	for _, s := range allStatuses {
		if CanTransition(s, to) {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s string) bool {
	return s == StatusConfirmed || s == StatusPaymentFailed
}
