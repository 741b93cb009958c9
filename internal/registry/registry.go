// Package registry holds the static printer registry for one relay
// instance. The registry is loaded once at startup and never mutated, so
// lookups are safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPrinter is returned when a printer id resolves to nothing.
	// Redelivery cannot fix a missing registry entry, so callers treat it
	// as permanent.
	ErrUnknownPrinter = errors.New("registry: printer not found")

	// ErrUnsupportedType is returned for registry entries whose connection
	// type is not "network". Also permanent.
	ErrUnsupportedType = errors.New("registry: unsupported connection type")
)

// ConnectionTypeNetwork is the only connection type the transport supports.
const ConnectionTypeNetwork = "network"

// Printer is one registry entry.
type Printer struct {
	ID             string
	Name           string
	ConnectionType string
	Address        string
}

// Registry maps printer ids to their connection parameters.
type Registry struct {
	byID      map[string]Printer
	byAddress map[string]Printer
}

// New builds a Registry from the given entries. The map key becomes the
// printer id.
func New(printers map[string]Printer) *Registry {
	r := &Registry{
		byID:      make(map[string]Printer, len(printers)),
		byAddress: make(map[string]Printer, len(printers)),
	}
	for id, p := range printers {
		p.ID = id
		r.byID[id] = p
		if p.Address != "" {
			r.byAddress[p.Address] = p
		}
	}
	return r
}

// Resolve looks up a printer by id, falling back to a reverse lookup by
// network address so a job may name its printer either way.
func (r *Registry) Resolve(idOrAddress string) (Printer, error) {
	if p, ok := r.byID[idOrAddress]; ok {
		return p, nil
	}
	if p, ok := r.byAddress[idOrAddress]; ok {
		return p, nil
	}
	return Printer{}, fmt.Errorf("%w: %s", ErrUnknownPrinter, idOrAddress)
}

// Len returns the number of registered printers.
func (r *Registry) Len() int {
	return len(r.byID)
}
