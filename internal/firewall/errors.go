package firewall

import "fmt"

// UnsupportedError is returned when a policy asks a method for something
// it cannot express. No backend commands are issued for such a policy.
type UnsupportedError struct {
	Method string
	Detail string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s method does not support %s", e.Method, e.Detail)
}
