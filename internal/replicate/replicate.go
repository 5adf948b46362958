// Package replicate defines the contract shared by both sync transports:
// ownership roles, the session interface, and the merge policy that keeps
// concurrently-edited match records from fighting each other.
package replicate

import (
	"errors"

	"github.com/ftc-decode/scorer-backend/internal/wire"
)

var (
	// ErrNotOwned rejects a publish that carries fields outside the
	// session's ownership. Programming error, not silently dropped.
	ErrNotOwned = errors.New("field not owned by session")

	// ErrDisconnected means the transport link is gone; callers surface a
	// disconnected state and allow manual retry.
	ErrDisconnected = errors.New("transport disconnected")
)

// Role is the field-ownership assignment of one replication session.
type Role string

const (
	// RoleRelay owns nothing; it relays, and applies everything it is sent.
	RoleRelay Role = "RELAY"
	// RoleRed owns the red alliance's fields.
	RoleRed Role = "RED"
	// RoleBlue owns the blue alliance's fields.
	RoleBlue Role = "BLUE"
	// RoleHost may publish everything: session fields, and both alliances
	// as the default source of truth when no scorer has claimed them.
	RoleHost Role = "HOST"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleRelay, RoleRed, RoleBlue, RoleHost:
		return Role(s), true
	}
	return "", false
}

// PublishSet lists the field names a role is allowed to publish. Motif is
// globally owned and may ride along with any non-empty set.
func (r Role) PublishSet() []string {
	switch r {
	case RoleRed:
		return wire.SideFieldNames(wire.RedPrefix)
	case RoleBlue:
		return wire.SideFieldNames(wire.BluePrefix)
	case RoleHost:
		names := wire.SideFieldNames(wire.RedPrefix)
		names = append(names, wire.SideFieldNames(wire.BluePrefix)...)
		names = append(names, wire.SessionFieldNames()...)
		return names
	default:
		return nil
	}
}

// MayPublish reports whether the role may publish the named field.
func (r Role) MayPublish(name string) bool {
	if name == "motif" {
		// Globally owned: whichever device randomizes it pushes it.
		return r != RoleRelay
	}
	for _, n := range r.PublishSet() {
		if n == name {
			return true
		}
	}
	return false
}

// Guards reports whether the role refuses remote writes to the named field.
// This is the ownership check of the merge policy: a device never lets a
// stale echo of its own edits clobber local state. The host guards the
// session-level fields but accepts alliance edits it has delegated to
// scorers; motif is guarded by nobody.
func (r Role) Guards(name string) bool {
	if name == "motif" {
		return false
	}
	switch r {
	case RoleRed:
		return hasPrefix(name, wire.RedPrefix) && !isSessionField(name)
	case RoleBlue:
		return hasPrefix(name, wire.BluePrefix) && !isSessionField(name)
	case RoleHost:
		return isSessionField(name)
	default:
		return false
	}
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func isSessionField(name string) bool {
	for _, n := range wire.SessionFieldNames() {
		if n == name {
			return true
		}
	}
	return false
}

// ValidatePublish rejects a partial record containing fields outside the
// role's ownership.
func ValidatePublish(r Role, f wire.Fields) error {
	for name := range f {
		if !r.MayPublish(name) {
			return ErrNotOwned
		}
	}
	return nil
}

// Update is one replicated partial record together with the role that
// produced it.
type Update struct {
	Source Role
	Fields wire.Fields
}

// Session is one device's attachment to a transport. Both the direct
// websocket client and the relay-store client satisfy it.
type Session interface {
	Role() Role

	// Publish sends the session's owned fields. Fields outside the
	// ownership set are rejected with ErrNotOwned.
	Publish(f wire.Fields) error

	// Updates is the lazy, unbounded stream of inbound partial records.
	// The channel is closed when the session ends or the link drops.
	Updates() <-chan Update

	// Close ends the session. Safe to call twice.
	Close() error
}
