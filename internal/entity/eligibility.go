package entity

import (
	"fmt"
	"time"
)

// AgeAt returns the whole years elapsed from birthDate to at. Both values are
// read as UTC calendar dates, so a birthday not yet reached in the year of at
// subtracts one.
func AgeAt(birthDate, at time.Time) (int, error) {
	if birthDate.IsZero() || at.IsZero() {
		return 0, fmt.Errorf("%w: birth date and event start are required", ErrValidation)
	}

	by, bm, bd := birthDate.UTC().Date()
	ay, am, ad := at.UTC().Date()

	if by > ay || (by == ay && (bm > am || (bm == am && bd > ad))) {
		return 0, fmt.Errorf("%w: birth date %s is after %s",
			ErrValidation, birthDate.Format(dateLayout), at.Format(dateLayout))
	}

	age := ay - by
	if am < bm || (am == bm && ad < bd) {
		age--
	}
	return age, nil
}

// IsEligible reports whether a child born on birthDate is within
// [minAge, maxAge] on eventStart. Malformed input is never eligible.
func IsEligible(birthDate, eventStart time.Time, minAge, maxAge int) (bool, error) {
	if minAge < 0 || minAge >= maxAge {
		return false, fmt.Errorf("%w: age range [%d, %d] is malformed", ErrValidation, minAge, maxAge)
	}

	age, err := AgeAt(birthDate, eventStart)
	if err != nil {
		return false, err
	}
	return age >= minAge && age <= maxAge, nil
}
