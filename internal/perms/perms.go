// Package `perms` handles access rights.
package perms

import "maps"

// The universal permission. A user holding it passes every check.
const FullAccess = "full_access"

// Rights maps permission names to whether they are granted.
type Rights map[string]bool

// Rights held by the owner account, always.
func Owner() Rights {
	return Rights{FullAccess: true}
}

// Checks if `r` grants every permission in `required`. [FullAccess] grants
// everything; otherwise each permission must be present and true.
func (r Rights) Check(required ...string) bool {
	if r[FullAccess] {
		return true
	}
	for _, p := range required {
		if !r[p] {
			return false
		}
	}
	return true
}

// Returns a copy of the rights that the caller may modify freely.
func (r Rights) Clone() Rights {
	if r == nil {
		return Rights{}
	}
	return maps.Clone(r)
}

// Names of permissions used by the built-in methods.
const (
	ManageUsers = "manage_users"
	Broadcast   = "broadcast"
	SendMessage = "send_message"
	SeeOnline   = "see_online"
)
