package rooms

import "carelink-ws-server/internal/types"

// Key identifies a subscription room. Keys form a small closed family and
// are only built through the helpers below, so a typo cannot silently
// create a dead room.
type Key string

const (
	// Doctors is the collective room every doctor joins on admission.
	Doctors Key = "doctors"
	// Admins is the collective room every admin joins on admission.
	Admins Key = "admins"
)

// User returns the per-principal room key.
func User(principalID string) Key {
	return Key("user:" + principalID)
}

// ForRole returns the per-role room key.
func ForRole(role types.Role) Key {
	return Key("role:" + string(role))
}

// DefaultsFor lists the rooms a connection is auto-subscribed to on
// admission: its own user room, its role room, and the collective staff
// room when the role is staff.
func DefaultsFor(p types.Principal) []Key {
	keys := []Key{User(p.ID), ForRole(p.Role)}
	switch p.Role {
	case types.RoleDoctor:
		keys = append(keys, Doctors)
	case types.RoleAdmin:
		keys = append(keys, Admins)
	}
	return keys
}

// StaffRooms lists the rooms escalations and emergency alerts fan out to.
func StaffRooms() []Key {
	return []Key{Doctors, Admins}
}
