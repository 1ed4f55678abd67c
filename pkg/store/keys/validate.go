package keys

import (
	"fmt"
	"regexp"
)

// conservative ID validation: letters, digits, dot, underscore, dash
// and a reasonable upper bound to protect DB key shapes.
var idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)

func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty identifier")
	}
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q", id)
	}
	return nil
}
