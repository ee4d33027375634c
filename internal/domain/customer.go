package domain

// Customer is the canonical identity record returned by the identity
// provider. UID is the provider's identifier, never a raw client string.
type Customer struct {
	UID   string
	Name  string
	Email string
	Phone string
}

// Snapshot returns the denormalized contact info stored on a ticket.
func (c *Customer) Snapshot() CustomerSnapshot {
	return CustomerSnapshot{
		Name:  c.Name,
		Email: c.Email,
		Phone: c.Phone,
	}
}
