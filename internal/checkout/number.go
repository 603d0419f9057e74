package checkout

import (
	"fmt"
	"math/rand"
	"time"
)

// NumberGenerator returns a candidate order number. Uniqueness is enforced by the
// database, so a generator may repeat itself.
type NumberGenerator func(now time.Time) string

// DateNumbers builds numbers of the form <prefix><YYYYMMDD><4 digits>.
func DateNumbers(prefix string) NumberGenerator {
	return func(now time.Time) string {
		return fmt.Sprintf("%s%s%04d", prefix, now.Format("20060102"), rand.Intn(10000))
	}
}
