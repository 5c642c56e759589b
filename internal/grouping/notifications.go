package grouping

// ReconciliationCompleted fires after every reconciliation pass,
// whether or not it needed to mutate anything.
type ReconciliationCompleted struct {
	Health Health
}

func (ReconciliationCompleted) NotificationName() string { return "ReconciliationCompleted" }
