package entity

// DeriveStatus is the event status transition function. CANCELLED and
// DISABLED are kept as is; otherwise the event is FULL once confirmed
// bookings reach capacity and ACTIVE below it.
func DeriveStatus(capacity, confirmed int, current EventStatus) EventStatus {
	if current.Sticky() {
		return current
	}
	if confirmed >= capacity {
		return EventStatusFull
	}
	return EventStatusActive
}
