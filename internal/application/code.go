// internal/application/code.go
package application

import (
	"fmt"
	"math/rand/v2"
)

// newCheckInCode returns a uniformly random 6-digit code. It is a shared
// low-value secret announced to the room during the event, not a
// credential, so math/rand is sufficient.
func newCheckInCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1_000_000))
}
