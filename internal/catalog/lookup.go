package catalog

// Lookup answers id questions against a Provider. Unknown ids never panic;
// callers that need a usable id fall back to the defaults.
type Lookup struct {
	p Provider
}

// NewLookup wraps a Provider. A nil provider behaves as an empty catalog.
func NewLookup(p Provider) Lookup {
	if p == nil {
		p = Data{}
	}
	return Lookup{p: p}
}

// Provider returns the wrapped provider.
func (l Lookup) Provider() Provider { return l.p }

// Category returns the category with the given id.
func (l Lookup) Category(id string) (Category, bool) {
	for _, c := range l.p.Categories() {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// IsMandatoryCategory reports whether id names a mandatory-kind category.
func (l Lookup) IsMandatoryCategory(id string) bool {
	c, ok := l.Category(id)
	return ok && c.Kind == KindMandatory
}

// IsJobCategory reports whether id names a job-kind category.
func (l Lookup) IsJobCategory(id string) bool {
	c, ok := l.Category(id)
	return ok && c.Kind == KindJob
}

// CategoryLabel returns the display name of a category, or "" if unknown.
func (l Lookup) CategoryLabel(id string) string {
	c, _ := l.Category(id)
	return c.Name
}

// HasDepartment reports whether id is a known department.
func (l Lookup) HasDepartment(id string) bool {
	for _, d := range l.p.Departments() {
		if d.ID == id {
			return true
		}
	}
	return false
}

// DepartmentName returns the display name of a department, or the id itself.
func (l Lookup) DepartmentName(id string) string {
	for _, d := range l.p.Departments() {
		if d.ID == id {
			return d.Name
		}
	}
	return id
}

// HasTemplate reports whether id is a known template.
func (l Lookup) HasTemplate(id string) bool {
	for _, t := range l.p.Templates() {
		if t.ID == id {
			return true
		}
	}
	return false
}

// HasJobTraining reports whether id is a known job training.
func (l Lookup) HasJobTraining(id string) bool {
	for _, j := range l.p.JobTrainings() {
		if j.ID == id {
			return true
		}
	}
	return false
}

// DefaultCategoryID returns the first job-kind category, falling back to the
// first category of any kind.
func (l Lookup) DefaultCategoryID() string {
	cats := l.p.Categories()
	for _, c := range cats {
		if c.Kind == KindJob {
			return c.ID
		}
	}
	if len(cats) > 0 {
		return cats[0].ID
	}
	return ""
}

// DefaultTemplateID returns the first template id.
func (l Lookup) DefaultTemplateID() string {
	if t := l.p.Templates(); len(t) > 0 {
		return t[0].ID
	}
	return ""
}

// ResolveCategory returns id when known, otherwise the default category.
func (l Lookup) ResolveCategory(id string) string {
	if _, ok := l.Category(id); ok {
		return id
	}
	return l.DefaultCategoryID()
}

// ResolveTemplate returns id when known, otherwise the default template.
// An empty id stays empty so an unselected template is still reported.
func (l Lookup) ResolveTemplate(id string) string {
	if id == "" || l.HasTemplate(id) {
		return id
	}
	return l.DefaultTemplateID()
}

// ResolveJobTraining returns id when known and "" otherwise.
func (l Lookup) ResolveJobTraining(id string) string {
	if l.HasJobTraining(id) {
		return id
	}
	return ""
}
