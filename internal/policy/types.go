package policy

import (
	"fmt"
	"strings"
)

// Decision is the combined outcome of all loaded policies.
type Decision struct {
	Result     Result
	Policies   []string
	Violations []string
}

// Result types
type Result string

const (
	ResultAllow Result = "allow"
	ResultDeny  Result = "deny"
)

// Allowed reports whether no policy denied the run.
func (d Decision) Allowed() bool {
	return d.Result != ResultDeny
}

// Check returns an error wrapping ErrDenied when the decision denies the run.
func Check(d Decision) error {
	if d.Allowed() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDenied, strings.Join(d.Violations, "; "))
}
