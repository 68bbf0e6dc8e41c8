package project

// Project is a hosted repository with its protection rules. The id is
// immutable once persisted; the name is unique among live projects at any
// committed instant.
type Project struct {
	ID         int64
	Name       string
	PublicRead bool

	// ForkedFrom is a weak back-reference to the fork origin, nulled when
	// the origin is deleted.
	ForkedFrom *int64

	BranchProtections []BranchProtection
	TagProtections    []TagProtection
}

// IsNew reports whether the project has not been persisted yet.
func (p *Project) IsNew() bool {
	return p.ID == 0
}

// BranchProtection restricts deletion and force-push on one branch.
type BranchProtection struct {
	ID          int64
	Branch      string
	NoDeletion  bool
	NoForcePush bool
}

// OnBranchDelete reports whether the rule should be removed now that the
// named branch has been deleted.
func (b BranchProtection) OnBranchDelete(branch string) bool {
	return b.Branch == branch
}

// TagProtection restricts deletion and update on one tag.
type TagProtection struct {
	ID         int64
	Tag        string
	NoDeletion bool
	NoUpdate   bool
}

// OnTagDelete reports whether the rule should be removed now that the named
// tag has been deleted.
func (t TagProtection) OnTagDelete(tag string) bool {
	return t.Tag == tag
}
