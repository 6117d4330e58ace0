// Package perms derives a user's effective comment permission level from
// group memberships and the four well-known role groups.
package perms

// Record is the effective permission for one user. Exactly one of Reader,
// Writer, Manager is true; Disabled may combine with any of them.
type Record struct {
	Reader   bool `json:"reader"`
	Writer   bool `json:"writer"`
	Manager  bool `json:"manager"`
	Disabled bool `json:"disabled"`
}

// Group is a role group descriptor. A nil *Group means the group is not
// defined in the directory and never matches.
type Group struct {
	ID string
}

// RoleGroups holds the four optional role group descriptors.
type RoleGroups struct {
	Reader   *Group
	Writer   *Group
	Manager  *Group
	Disabled *Group
}

// Baseline is the record for users matching no role group: unassigned users
// can write.
func Baseline() Record {
	return Record{Writer: true}
}

// Resolve evaluates the ordered rule list reader → writer → manager with
// last-match-wins overwrite, so manager membership beats writer, which beats
// reader, however many groups the user belongs to. Disabled is checked
// independently afterwards and set on top of the resolved role.
func Resolve(groupIDs []string, roles RoleGroups) Record {
	record := Baseline()

	rules := []struct {
		group *Group
		grant Record
	}{
		{roles.Reader, Record{Reader: true}},
		{roles.Writer, Record{Writer: true}},
		{roles.Manager, Record{Manager: true}},
	}
	for _, rule := range rules {
		if rule.group != nil && containsID(groupIDs, rule.group.ID) {
			record = rule.grant
		}
	}

	if roles.Disabled != nil && containsID(groupIDs, roles.Disabled.ID) {
		record.Disabled = true
	}
	return record
}

// CanRead reports whether the user may see comments at all.
func (r Record) CanRead() bool {
	return !r.Disabled
}

// CanWrite reports whether the user may add, edit, or delete comments.
func (r Record) CanWrite() bool {
	return (r.Writer || r.Manager) && !r.Disabled
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
