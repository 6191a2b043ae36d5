// Package domain provides the core types shared across the gateway:
// logical operations, records and their schemas, field mappings, endpoint
// operations, and the canonical error type.
package domain

import "fmt"

// Operation is a logical resource operation requested by a caller.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationFind   Operation = "find"
)

// ParseOperation validates a caller-supplied operation name.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OperationCreate, OperationUpdate, OperationDelete, OperationFind:
		return Operation(s), nil
	}
	return "", ErrInvalidRequest(fmt.Sprintf("unknown operation %q", s))
}

// FieldSpec describes how one caller-facing field maps to the wire side.
// A bare rename carries only WireField; lookup-style transforms additionally
// name the entity whose name/id table they consult.
type FieldSpec struct {
	WireField        string `koanf:"wire_field"`
	ForwardTransform string `koanf:"forward_transform"`
	ReverseTransform string `koanf:"reverse_transform"`
	// Entity identifies the lookup table used by name/id transforms
	// (e.g. "organization" for names_to_ids).
	Entity string `koanf:"entity"`
	// LookupPath is the remote read endpoint used to populate the lookup
	// cache on a miss (e.g. "/v2/organizations").
	LookupPath string `koanf:"lookup_path"`
}

// MappingEntry binds one caller-facing field (dot-delimited paths address
// nested structure) to its wire-side specification.
type MappingEntry struct {
	Field string
	Spec  FieldSpec
}

// FieldMapping is the ordered set of per-field conversion rules for one
// resource at one version.
type FieldMapping []MappingEntry

// EndpointOperation describes one remote call participating in a logical
// operation. Path may contain {param} placeholders resolved from earlier
// responses or from the wire record.
type EndpointOperation struct {
	Name        string
	Path        string   `koanf:"path"`
	Method      string   `koanf:"method"`
	Fields      []string `koanf:"fields"`
	RequiredFor []string `koanf:"required_for"`
	DependsOn   string   `koanf:"depends_on"`
	Order       int      `koanf:"order"`
}

// AppliesTo reports whether the operation participates in the given logical
// action. An empty RequiredFor list means "always".
func (op EndpointOperation) AppliesTo(action Operation) bool {
	if len(op.RequiredFor) == 0 {
		return true
	}
	for _, a := range op.RequiredFor {
		if a == string(action) {
			return true
		}
	}
	return false
}
