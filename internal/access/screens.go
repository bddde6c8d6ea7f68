package access

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Screen names used by the portal routes.
const (
	ScreenDashboard         = "dashboard"
	ScreenPolicies          = "policies"
	ScreenPoliciesWrite     = "policies.write"
	ScreenLicenses          = "licenses"
	ScreenLicensesWrite     = "licenses.write"
	ScreenReports           = "reports"
	ScreenUsers             = "users"
	ScreenOrganization      = "organization"
	ScreenOrganizationWrite = "organization.write"
)

// ErrScreenNotFound is returned when a screen has no permission request.
var ErrScreenNotFound = errors.New("screen not found")

// ScreenSpec is one entry of the YAML screen table. Exactly one of Group and
// Allow must be set.
type ScreenSpec struct {
	Name  string   `yaml:"name"`
	Group string   `yaml:"group,omitempty"`
	Allow []string `yaml:"allow,omitempty"`
}

type screenFile struct {
	Screens []ScreenSpec `yaml:"screens"`
}

// ScreenSource serves permission requests by screen name. ScreenTable and
// ScreenWatcher implement it.
type ScreenSource interface {
	Request(name string) (PermissionRequest, error)
	Entries() []ScreenEntry
}

// ScreenEntry pairs a screen with its resolved request.
type ScreenEntry struct {
	Name    string
	Request PermissionRequest
}

// ScreenTable maps screen names to permission requests. It is immutable
// once built.
type ScreenTable struct {
	order    []string
	requests map[string]PermissionRequest
}

// DefaultScreenTable returns the built-in permission table.
func DefaultScreenTable() *ScreenTable {
	t := newScreenTable()
	t.set(ScreenDashboard, Everyone)
	t.set(ScreenPolicies, Everyone)
	t.set(ScreenPoliciesWrite, AdminOrOwner)
	t.set(ScreenLicenses, Everyone)
	t.set(ScreenLicensesWrite, AdminOrOwner)
	t.set(ScreenReports, AdminOrOwner)
	t.set(ScreenUsers, AdminGroup)
	t.set(ScreenOrganization, AdminOrOwner)
	t.set(ScreenOrganizationWrite, OwnerOnly)
	return t
}

// LoadScreenTable reads a YAML screen table from path.
func LoadScreenTable(path string) (*ScreenTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screen table: %w", err)
	}
	return ParseScreenTable(data)
}

// ParseScreenTable parses a YAML screen table.
func ParseScreenTable(data []byte) (*ScreenTable, error) {
	var file screenFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal screen table: %w", err)
	}

	t := newScreenTable()
	for i, spec := range file.Screens {
		if spec.Name == "" {
			return nil, fmt.Errorf("screen %d: name is required", i)
		}
		if _, dup := t.requests[spec.Name]; dup {
			return nil, fmt.Errorf("screen %q: duplicate entry", spec.Name)
		}
		req, err := spec.request()
		if err != nil {
			return nil, fmt.Errorf("screen %q: %w", spec.Name, err)
		}
		t.set(spec.Name, req)
	}
	return t, nil
}

func (s ScreenSpec) request() (PermissionRequest, error) {
	switch {
	case s.Group != "" && len(s.Allow) > 0:
		return PermissionRequest{}, errors.New("set either group or allow, not both")
	case s.Group != "":
		return Group(s.Group)
	case len(s.Allow) > 0:
		roles := make([]Role, 0, len(s.Allow))
		for _, tag := range s.Allow {
			r, err := ParseRole(tag)
			if err != nil {
				return PermissionRequest{}, err
			}
			roles = append(roles, r)
		}
		return Allow(roles...), nil
	default:
		return PermissionRequest{}, errors.New("group or allow is required")
	}
}

// WithOverrides returns a new table holding t's entries replaced or extended
// by the entries of other.
func (t *ScreenTable) WithOverrides(other *ScreenTable) *ScreenTable {
	out := newScreenTable()
	for _, name := range t.order {
		out.set(name, t.requests[name])
	}
	if other == nil {
		return out
	}
	for _, name := range other.order {
		out.set(name, other.requests[name])
	}
	return out
}

// Request returns the permission request of a screen.
func (t *ScreenTable) Request(name string) (PermissionRequest, error) {
	req, ok := t.requests[name]
	if !ok {
		return PermissionRequest{}, fmt.Errorf("%w: %s", ErrScreenNotFound, name)
	}
	return req, nil
}

// Entries lists the table in definition order.
func (t *ScreenTable) Entries() []ScreenEntry {
	out := make([]ScreenEntry, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, ScreenEntry{Name: name, Request: t.requests[name]})
	}
	return out
}

func newScreenTable() *ScreenTable {
	return &ScreenTable{requests: make(map[string]PermissionRequest)}
}

func (t *ScreenTable) set(name string, req PermissionRequest) {
	if _, ok := t.requests[name]; !ok {
		t.order = append(t.order, name)
	}
	t.requests[name] = req
}
