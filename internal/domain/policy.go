package domain

// Permission is a capability a subject may be granted.
type Permission string

const (
	PermDeploy      Permission = "DEPLOY"
	PermRollback    Permission = "ROLLBACK"
	PermHealRestart Permission = "HEAL_RESTART"
	PermHealRebuild Permission = "HEAL_REBUILD"
	PermView        Permission = "VIEW"
)

// RoleName names a set of permissions bindable to subjects.
type RoleName string

const (
	RoleViewer   RoleName = "viewer"
	RoleOperator RoleName = "operator"
	RoleAdmin    RoleName = "admin"
)

// SubjectID identifies a principal authorizing against the policy.
type SubjectID string

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	Allow Decision = "ALLOW"
	Deny  Decision = "DENY"
)

type denyKey struct {
	subject    SubjectID
	permission Permission
}

// Policy is an immutable role→permission / subject→role binding table plus
// an explicit deny set. Bindings and denies are mutated via methods that
// return a new Policy; Authorize itself is a pure function.
type Policy struct {
	roles    map[RoleName]map[Permission]bool
	bindings map[SubjectID]map[RoleName]bool
	denies   map[denyKey]bool
}

// NewPolicy constructs a Policy pre-seeded with the built-in roles from
// spec §3: viewer={VIEW}, operator={VIEW,DEPLOY,HEAL_RESTART},
// admin=all permissions.
func NewPolicy() Policy {
	all := map[Permission]bool{
		PermDeploy: true, PermRollback: true, PermHealRestart: true, PermHealRebuild: true, PermView: true,
	}
	return Policy{
		roles: map[RoleName]map[Permission]bool{
			RoleViewer:   {PermView: true},
			RoleOperator: {PermView: true, PermDeploy: true, PermHealRestart: true},
			RoleAdmin:    all,
		},
		bindings: map[SubjectID]map[RoleName]bool{},
		denies:   map[denyKey]bool{},
	}
}

func cloneRoles(m map[RoleName]map[Permission]bool) map[RoleName]map[Permission]bool {
	out := make(map[RoleName]map[Permission]bool, len(m))
	for k, v := range m {
		perms := make(map[Permission]bool, len(v))
		for p := range v {
			perms[p] = true
		}
		out[k] = perms
	}
	return out
}

func cloneBindings(m map[SubjectID]map[RoleName]bool) map[SubjectID]map[RoleName]bool {
	out := make(map[SubjectID]map[RoleName]bool, len(m))
	for k, v := range m {
		roles := make(map[RoleName]bool, len(v))
		for r := range v {
			roles[r] = true
		}
		out[k] = roles
	}
	return out
}

func cloneDenies(m map[denyKey]bool) map[denyKey]bool {
	out := make(map[denyKey]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

// WithRole returns a new Policy with role granted the given permissions
// (merged with any it already has).
func (p Policy) WithRole(role RoleName, perms ...Permission) Policy {
	roles := cloneRoles(p.roles)
	set, ok := roles[role]
	if !ok {
		set = map[Permission]bool{}
		roles[role] = set
	}
	for _, perm := range perms {
		set[perm] = true
	}
	return Policy{roles: roles, bindings: p.bindings, denies: p.denies}
}

// Bind returns a new Policy with subject bound to role (in addition to any
// existing bindings).
func (p Policy) Bind(subject SubjectID, role RoleName) Policy {
	bindings := cloneBindings(p.bindings)
	set, ok := bindings[subject]
	if !ok {
		set = map[RoleName]bool{}
		bindings[subject] = set
	}
	set[role] = true
	return Policy{roles: p.roles, bindings: bindings, denies: p.denies}
}

// Unbind returns a new Policy with subject's binding to role removed.
func (p Policy) Unbind(subject SubjectID, role RoleName) Policy {
	bindings := cloneBindings(p.bindings)
	if set, ok := bindings[subject]; ok {
		delete(set, role)
	}
	return Policy{roles: p.roles, bindings: bindings, denies: p.denies}
}

// Deny returns a new Policy with an explicit deny recorded for
// (subject, permission). An explicit deny always wins over role grants.
func (p Policy) Deny(subject SubjectID, permission Permission) Policy {
	denies := cloneDenies(p.denies)
	denies[denyKey{subject, permission}] = true
	return Policy{roles: p.roles, bindings: p.bindings, denies: denies}
}

// RevokeDeny returns a new Policy with the explicit deny for
// (subject, permission) removed.
func (p Policy) RevokeDeny(subject SubjectID, permission Permission) Policy {
	denies := cloneDenies(p.denies)
	delete(denies, denyKey{subject, permission})
	return Policy{roles: p.roles, bindings: p.bindings, denies: denies}
}

// Authorize evaluates (subject, permission) per spec §4.2:
//  1. explicit deny wins
//  2. else union of bound roles' permissions
//  3. else default deny
// Unknown subjects always DENY — they have no bindings to grant from.
func (p Policy) Authorize(subject SubjectID, permission Permission) Decision {
	if p.denies[denyKey{subject, permission}] {
		return Deny
	}

	for role := range p.bindings[subject] {
		if p.roles[role][permission] {
			return Allow
		}
	}

	return Deny
}
