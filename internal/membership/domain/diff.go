package domain

// Diff describes how the membership list changed between two profile snapshots, by organization id.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffMemberships compares before and after. Order of each list follows the order of the list it was found in.
// A membership counts as changed when its role, permissions, or default flag differ.
func DiffMemberships(before, after []Membership) Diff {
	prev := make(map[string]Membership, len(before))
	for _, m := range before {
		if _, dup := prev[m.OrgID]; !dup {
			prev[m.OrgID] = m
		}
	}
	var d Diff
	seen := make(map[string]bool, len(after))
	for _, m := range after {
		if seen[m.OrgID] {
			continue
		}
		seen[m.OrgID] = true
		old, ok := prev[m.OrgID]
		switch {
		case !ok:
			d.Added = append(d.Added, m.OrgID)
		case old.Role != m.Role || old.Permissions != m.Permissions || old.IsDefault != m.IsDefault:
			d.Changed = append(d.Changed, m.OrgID)
		}
	}
	for _, m := range before {
		if !seen[m.OrgID] {
			seen[m.OrgID] = true
			d.Removed = append(d.Removed, m.OrgID)
		}
	}
	return d
}
