package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets a service with no
// registered handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}
