package decision

import (
	"fmt"
	"strings"

	"zonegate/internal/types"
)

// MissingDataError reports vehicle attributes a policy needs but the car
// record lacks. Decide folds this into an unknown verdict; it is returned
// only by RequireFields.
type MissingDataError struct {
	Plate  string
	Fields []string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("vehicle %s is missing %s", e.Plate, strings.Join(e.Fields, ", "))
}

// RequireFields returns a *MissingDataError when car lacks attributes the
// policy constrains, and nil otherwise.
func RequireFields(car types.Car, policy types.Policy) error {
	if missing := MissingFields(car, policy); len(missing) > 0 {
		return &MissingDataError{Plate: car.Plate, Fields: missing}
	}
	return nil
}

// BannedBy returns the rules of policy that ban car, in policy order. It
// ignores effective dates and exemptions; Decide applies those.
func (e *Engine) BannedBy(car types.Car, policy types.Policy) ([]types.Rule, error) {
	return e.bannedBy(car, policy)
}
