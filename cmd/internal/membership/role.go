package membership

// Role is the explicit role stored on a membership row.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Status is the invitation lifecycle state of a membership row.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// EffectiveRole is a user's computed standing within a project. It folds the
// implicit root owner and the absence of any membership into the same
// namespace as the stored roles.
type EffectiveRole string

const (
	EffectiveRootAdmin EffectiveRole = "root_admin"
	EffectiveAdmin     EffectiveRole = "admin"
	EffectiveUser      EffectiveRole = "user"
	EffectiveNone      EffectiveRole = "none"
)

// Member reports whether the role grants any standing in the project.
func (r EffectiveRole) Member() bool {
	return r != EffectiveNone && r != ""
}

// CanInvite reports whether the role may send invitations.
func (r EffectiveRole) CanInvite() bool {
	return r == EffectiveRootAdmin || r == EffectiveAdmin
}

// CanManageMembers reports whether the role may change member roles or
// revoke memberships. Only the root owner holds this capability.
func (r EffectiveRole) CanManageMembers() bool {
	return r == EffectiveRootAdmin
}

// CanCompose reports whether the role may create and modify recipes and
// combinations.
func (r EffectiveRole) CanCompose() bool {
	return r == EffectiveRootAdmin || r == EffectiveAdmin
}
