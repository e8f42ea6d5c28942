package permissions

import (
	"errors"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
)

// Hierarchy edits are gated by an explicit capability value rather than a
// session flag, so the engine's core logic is testable without a simulated
// session: callers obtain the capability here and pass it into the service.

const (
	ObjectHierarchy = "hierarchy"

	ActionEdit = "edit"
	ActionView = "view"

	RoleAdmin = "admin"
)

var ErrForbidden = errors.New("caller is not allowed to edit the hierarchy")

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Enforcer wraps a casbin enforcer seeded with the engine's fixed policy:
// only admins may edit the hierarchy, everyone with a role may view it.
type Enforcer struct {
	enforcer *casbin.Enforcer
}

func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicy(RoleAdmin, ObjectHierarchy, ActionEdit); err != nil {
		return nil, err
	}
	if _, err := e.AddPolicy(RoleAdmin, ObjectHierarchy, ActionView); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

// GrantRole attaches a role to a subject (typically at session start, from
// the identity provider's claims).
func (e *Enforcer) GrantRole(subject uuid.UUID, role string) error {
	_, err := e.enforcer.AddRoleForUser(subject.String(), role)
	return err
}

// HierarchyEdit mints the capability required by reparent operations.
// Subjects without the edit permission get ErrForbidden.
func (e *Enforcer) HierarchyEdit(subject uuid.UUID) (HierarchyEditCapability, error) {
	ok, err := e.enforcer.Enforce(subject.String(), ObjectHierarchy, ActionEdit)
	if err != nil {
		return HierarchyEditCapability{}, err
	}
	if !ok {
		return HierarchyEditCapability{}, ErrForbidden
	}
	return HierarchyEditCapability{subject: subject, granted: true}, nil
}

// HierarchyEditCapability proves an authorization check happened. The zero
// value is not granted; services reject it before touching the store.
type HierarchyEditCapability struct {
	subject uuid.UUID
	granted bool
}

func (c HierarchyEditCapability) Granted() bool      { return c.granted }
func (c HierarchyEditCapability) Subject() uuid.UUID { return c.subject }
