package enums

import "fmt"

// ActorKind identifies who performed a lifecycle mutation. History rows carry
// a closed kind instead of free text so the audit trail stays checkable.
type ActorKind string

const (
	ActorKindCustomer ActorKind = "customer"
	ActorKindVendor   ActorKind = "vendor"
	ActorKindAgent    ActorKind = "agent"
	ActorKindAdmin    ActorKind = "admin"
	ActorKindSystem   ActorKind = "system"
)

var validActorKinds = []ActorKind{
	ActorKindCustomer,
	ActorKindVendor,
	ActorKindAgent,
	ActorKindAdmin,
	ActorKindSystem,
}

// String implements fmt.Stringer.
func (a ActorKind) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorKind.
func (a ActorKind) IsValid() bool {
	for _, candidate := range validActorKinds {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorKind converts raw input into an ActorKind.
func ParseActorKind(value string) (ActorKind, error) {
	for _, candidate := range validActorKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor kind %q", value)
}
