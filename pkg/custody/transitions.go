package custody

import "fmt"

// IsTerminalStatus reports whether a status accepts no further transitions.
func IsTerminalStatus(status ObjectStatus) bool {
	return status == ObjectStatusDisposed || status == ObjectStatusRetired
}

// validStatus reports whether the value is a known object status.
func validStatus(status ObjectStatus) bool {
	switch status {
	case ObjectStatusActive, ObjectStatusInactive, ObjectStatusArchived,
		ObjectStatusDisposed, ObjectStatusRetired:
		return true
	default:
		return false
	}
}

// validObjectType reports whether the value is a known tracked object type.
func validObjectType(t ObjectType) bool {
	switch t {
	case ObjectTypeDocket, ObjectTypeEvidence, ObjectTypeEquipment,
		ObjectTypeFile, ObjectTypeTool:
		return true
	default:
		return false
	}
}

// canTransition checks a status transition against the allowed pairs:
// active <-> inactive, active -> archived, and any non-terminal status may be
// disposed or retired. Returns nil if allowed, a wrapped
// ErrInvalidTransition otherwise.
func canTransition(from, to ObjectStatus) error {
	if !validStatus(to) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if IsTerminalStatus(from) {
		return fmt.Errorf("%w: object is %s (terminal)", ErrInvalidTransition, from)
	}
	if from == to {
		return fmt.Errorf("%w: object is already %s", ErrInvalidTransition, to)
	}

	switch to {
	case ObjectStatusDisposed, ObjectStatusRetired:
		return nil
	case ObjectStatusInactive:
		if from == ObjectStatusActive {
			return nil
		}
	case ObjectStatusActive:
		if from == ObjectStatusInactive {
			return nil
		}
	case ObjectStatusArchived:
		if from == ObjectStatusActive {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// canMutate checks that an object accepts location/assignment/tag changes.
func canMutate(object *TrackedObject) error {
	if object.Terminal() {
		return fmt.Errorf("%w: object is %s (terminal)", ErrInvalidTransition, object.Status)
	}
	return nil
}
