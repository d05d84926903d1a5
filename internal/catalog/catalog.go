// Package catalog provides the selectable categories, departments, templates,
// and job trainings that work items reference.
package catalog

import (
	"fmt"
	"strings"
)

// Kind distinguishes job-specific categories from mandatory company-wide ones.
type Kind string

const (
	KindJob       Kind = "JOB"
	KindMandatory Kind = "MANDATORY"
)

// ParseKind converts a raw kind string into a Kind.
func ParseKind(value string) (Kind, bool) {
	switch Kind(strings.ToUpper(strings.TrimSpace(value))) {
	case KindJob:
		return KindJob, true
	case KindMandatory:
		return KindMandatory, true
	}
	return "", false
}

// Category is a content category.
type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
}

// Department is an organizational unit content can target.
type Department struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Template is a video layout template.
type Template struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// JobTraining is a job-training program a job-kind item belongs to.
type JobTraining struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Provider supplies catalog entries. Implementations must return stable ids.
type Provider interface {
	Categories() []Category
	Departments() []Department
	Templates() []Template
	JobTrainings() []JobTraining
}

// Data is a plain in-memory catalog.
type Data struct {
	CategoryList    []Category
	DepartmentList  []Department
	TemplateList    []Template
	JobTrainingList []JobTraining
}

func (d Data) Categories() []Category { return d.CategoryList }
func (d Data) Departments() []Department { return d.DepartmentList }
func (d Data) Templates() []Template { return d.TemplateList }
func (d Data) JobTrainings() []JobTraining { return d.JobTrainingList }

// Validate checks that ids are present and unique within each list.
func (d Data) Validate() error {
	var errs []string
	if len(d.CategoryList) == 0 {
		errs = append(errs, "at least one category is required")
	}
	if len(d.TemplateList) == 0 {
		errs = append(errs, "at least one template is required")
	}
	seen := make(map[string]bool)
	for i, c := range d.CategoryList {
		if c.ID == "" {
			errs = append(errs, fmt.Sprintf("categories[%d].id is required", i))
		}
		if seen["c:"+c.ID] {
			errs = append(errs, fmt.Sprintf("duplicate category id %q", c.ID))
		}
		seen["c:"+c.ID] = true
		if _, ok := ParseKind(string(c.Kind)); !ok {
			errs = append(errs, fmt.Sprintf("categories[%d].kind %q must be JOB or MANDATORY", i, c.Kind))
		}
	}
	for i, dep := range d.DepartmentList {
		if dep.ID == "" {
			errs = append(errs, fmt.Sprintf("departments[%d].id is required", i))
		}
		if seen["d:"+dep.ID] {
			errs = append(errs, fmt.Sprintf("duplicate department id %q", dep.ID))
		}
		seen["d:"+dep.ID] = true
	}
	for i, t := range d.TemplateList {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("templates[%d].id is required", i))
		}
	}
	for i, j := range d.JobTrainingList {
		if j.ID == "" {
			errs = append(errs, fmt.Sprintf("job_trainings[%d].id is required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}
