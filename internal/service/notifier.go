package service

// Notifier delivers outbound messages to an account. Delivery is
// best-effort everywhere in this package: a returned error is logged by the
// caller and never rolls back the ledger or workflow mutation it follows.
type Notifier interface {
	SendMessage(userID int64, text string) error
}
