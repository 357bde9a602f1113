// Package servers implements the server catalog, servername grammar,
// and selection strategies.
// This file contains servername validation and canonicalization.
package servers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Servername grammar. Two literal forms are accepted, both
// case-insensitive on input:
//
//	short: CC[-|#]N[-TOR]          -> canonical CC#N[-TOR]
//	long:  CC1[-|#]CC2|FREE[-|#]N[-TOR] -> canonical CC1-CC2#N[-TOR]
//
// N is 1 to 3 digits with leading zeros stripped.
var (
	reServernameShort = regexp.MustCompile(`^(\w\w)(?:-|#)?(\d{1,3})-?(TOR)?$`)
	reServernameLong  = regexp.MustCompile(`^(\w\w)(?:-|#)?([A-Z]{2}|FREE)(?:-|#)?(\d{1,3})-?(TOR)?$`)
)

// NormalizeServername parses a user-entered servername and returns its
// canonical form. The result is idempotent: normalizing a canonical
// name returns it unchanged.
func NormalizeServername(input string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(input))

	if m := reServernameShort.FindStringSubmatch(name); m != nil {
		number, _ := strconv.Atoi(m[2])
		canonical := fmt.Sprintf("%s#%d", m[1], number)
		if m[3] != "" {
			canonical += "-TOR"
		}
		return canonical, nil
	}

	if m := reServernameLong.FindStringSubmatch(name); m != nil {
		number, _ := strconv.Atoi(m[3])
		canonical := fmt.Sprintf("%s-%s#%d", m[1], m[2], number)
		if m[4] != "" {
			canonical += "-TOR"
		}
		return canonical, nil
	}

	return "", fmt.Errorf("%w: %q", ErrIllegalServername, input)
}

// ValidServername reports whether the input matches the servername
// grammar. It never fails, it only reports.
func ValidServername(input string) bool {
	_, err := NormalizeServername(input)
	return err == nil
}
