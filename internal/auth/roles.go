package auth

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	PermView         = "view"
	PermEdit         = "edit"
	PermDelete       = "delete"
	PermManageAdmins = "manage_admins"

	RoleSuperAdmin = "super_admin"
)

//go:embed roles.yaml
var rolesYAML []byte

// Roles maps each admin role to its permission set.
type Roles struct {
	perms map[string]map[string]bool
}

type rolesFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadRoles parses the embedded role table.
func LoadRoles() (*Roles, error) {
	return ParseRoles(rolesYAML)
}

func ParseRoles(data []byte) (*Roles, error) {
	var f rolesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("parse roles: no roles defined")
	}
	r := &Roles{perms: make(map[string]map[string]bool, len(f.Roles))}
	for role, perms := range f.Roles {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		r.perms[role] = set
	}
	return r, nil
}

func (r *Roles) Valid(role string) bool {
	_, ok := r.perms[role]
	return ok
}

func (r *Roles) Allowed(role, perm string) bool {
	return r.perms[role][perm]
}

// Permissions lists the permissions of role in sorted order.
func (r *Roles) Permissions(role string) []string {
	out := make([]string, 0, len(r.perms[role]))
	for p := range r.perms[role] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Names lists the defined roles in sorted order.
func (r *Roles) Names() []string {
	out := make([]string, 0, len(r.perms))
	for role := range r.perms {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
