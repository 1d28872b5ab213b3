package core

import (
	"fmt"
	"time"

	"silatcore/pkg/domain"
)

// registrationPrefix is the organisation prefix carried by every generated
// registration number (NIA).
const registrationPrefix = "PSHT"

// ReserveRegistrationNumber reserves the next NIA of the form PSHT-<year>-NNNN
// from the year-scoped persistent counter. Counters are never rewound, so
// repeated calls within one transaction yield distinct numbers and deleting
// members never frees a number for reuse.
func ReserveRegistrationNumber(tx domain.Transaction, now time.Time) (string, error) {
	year := now.UTC().Year()
	seq, err := tx.NextSequence(fmt.Sprintf("nia:%d", year))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", registrationPrefix, year, seq), nil
}
