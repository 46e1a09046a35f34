// Package model defines the source records scraped for companies and jobs
// and the defaulting rules applied before they reach staging.
package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalid marks a record that is missing a mandatory field.
var ErrInvalid = eris.New("model: invalid record")

// Company is one scraped company record. Every field except Name and Slug
// is optional; absent lists decode as empty and absent numbers as unset.
type Company struct {
	Name            string          `json:"name"`
	Slug            string          `json:"slug"`
	Description     string          `json:"description,omitempty"`
	Domain          string          `json:"domain,omitempty"`
	EmailDomains    StringList      `json:"emailDomains,omitempty"`
	StaffCount      OptInt          `json:"staffCount"`
	Markets         StringList      `json:"markets,omitempty"`
	Stages          StringList      `json:"stages,omitempty"`
	OfficeLocations StringList      `json:"officeLocations,omitempty"`
	Investors       StringList      `json:"investors,omitempty"`
	InvestorSlugs   StringList      `json:"investorSlugs,omitempty"`
	Founders        []Founder       `json:"founders,omitempty"`
	Logos           json.RawMessage `json:"logos,omitempty"`
	Website         string          `json:"website,omitempty"`
	ParentSlugs     StringList      `json:"parentSlugs,omitempty"`
	Parents         StringList      `json:"parents,omitempty"`
	DataSource      string          `json:"dataSource,omitempty"`
}

// Founder is a person attached to a company. ID is supplied by the source
// and is stable across runs.
type Founder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Bio      string `json:"bio,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Investor is an investor reference resolved from the parallel
// investors/investorSlugs lists.
type Investor struct {
	Name string
	Slug string
}

// Job is one scraped job posting.
type Job struct {
	Title           string     `json:"title"`
	CompanySlug     string     `json:"companySlug"`
	ApplyURL        string     `json:"applyUrl,omitempty"`
	URL             string     `json:"url,omitempty"`
	Remote          Bool       `json:"remote,omitempty"`
	Hybrid          Bool       `json:"hybrid,omitempty"`
	TimeStamp       Timestamp  `json:"timeStamp"`
	Manager         Bool       `json:"manager,omitempty"`
	Consultant      Bool       `json:"consultant,omitempty"`
	Contractor      Bool       `json:"contractor,omitempty"`
	MinYearsExp     OptInt     `json:"minYearsExp"`
	MaxYearsExp     OptInt     `json:"maxYearsExp"`
	Skills          StringList `json:"skills,omitempty"`
	RequiredSkills  StringList `json:"requiredSkills,omitempty"`
	PreferredSkills StringList `json:"preferredSkills,omitempty"`
	Departments     StringList `json:"departments,omitempty"`
	JobTypes        StringList `json:"jobTypes,omitempty"`
	JobFunctions    StringList `json:"jobFunctions,omitempty"`
	JobSeniorities  StringList `json:"jobSeniorities,omitempty"`
	Regions         StringList `json:"regions,omitempty"`
	Locations       StringList `json:"locations,omitempty"`
	Salary          *Salary    `json:"salary,omitempty"`
	DataSource      string     `json:"dataSource,omitempty"`
}

// Salary is the compensation block of a job posting.
type Salary struct {
	MinValue OptFloat `json:"minValue"`
	MaxValue OptFloat `json:"maxValue"`
	Currency string   `json:"currency,omitempty"`
	Period   string   `json:"period,omitempty"`
}

// Normalize trims scalar fields in place.
func (c *Company) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Slug = strings.TrimSpace(c.Slug)
	c.Description = strings.TrimSpace(c.Description)
	c.Domain = strings.TrimSpace(c.Domain)
	c.Website = strings.TrimSpace(c.Website)
	c.DataSource = strings.TrimSpace(c.DataSource)
	for i := range c.Founders {
		c.Founders[i].normalize()
	}
}

// Validate returns ErrInvalid when name or slug is missing.
func (c *Company) Validate() error {
	switch {
	case c.Name == "":
		return eris.Wrapf(ErrInvalid, "company %q: missing name", c.Slug)
	case c.Slug == "":
		return eris.Wrapf(ErrInvalid, "company %q: missing slug", c.Name)
	}
	return nil
}

// InvestorRefs pairs investors with investorSlugs by index, deriving a slug
// from the name when none is given. Entries without a usable slug are dropped,
// and the first occurrence of a slug wins.
func (c *Company) InvestorRefs() []Investor {
	n := max(len(c.Investors), len(c.InvestorSlugs))
	out := make([]Investor, 0, n)
	seen := make(KeySet[string], n)
	for i := 0; i < n; i++ {
		name := c.Investors.At(i)
		slug := c.InvestorSlugs.At(i)
		if slug == "" {
			slug = Slugify(name)
		}
		if slug == "" || !seen.Add(slug) {
			continue
		}
		if name == "" {
			name = slug
		}
		out = append(out, Investor{Name: name, Slug: slug})
	}
	return out
}

// ParentRefs returns parent company slugs from parentSlugs, falling back to
// slugified parents names position by position.
func (c *Company) ParentRefs() []string {
	n := max(len(c.ParentSlugs), len(c.Parents))
	out := make([]string, 0, n)
	seen := make(KeySet[string], n)
	for i := 0; i < n; i++ {
		slug := c.ParentSlugs.At(i)
		if slug == "" {
			slug = Slugify(c.Parents.At(i))
		}
		if slug == "" || slug == c.Slug || !seen.Add(slug) {
			continue
		}
		out = append(out, slug)
	}
	return out
}

// ValidFounders returns founders that carry both an id and a name, first
// occurrence of an id winning.
func (c *Company) ValidFounders() []Founder {
	out := make([]Founder, 0, len(c.Founders))
	seen := make(KeySet[string], len(c.Founders))
	for _, f := range c.Founders {
		if f.ID == "" || f.Name == "" || !seen.Add(f.ID) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (f *Founder) normalize() {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	f.Title = strings.TrimSpace(f.Title)
	f.LinkedIn = strings.TrimSpace(f.LinkedIn)
	f.Twitter = strings.TrimSpace(f.Twitter)
	f.Bio = strings.TrimSpace(f.Bio)
	f.ImageURL = strings.TrimSpace(f.ImageURL)
}

// Normalize trims scalar fields in place.
func (j *Job) Normalize() {
	j.Title = strings.TrimSpace(j.Title)
	j.CompanySlug = strings.TrimSpace(j.CompanySlug)
	j.ApplyURL = strings.TrimSpace(j.ApplyURL)
	j.URL = strings.TrimSpace(j.URL)
	j.DataSource = strings.TrimSpace(j.DataSource)
	if j.Salary != nil {
		j.Salary.Currency = strings.ToUpper(strings.TrimSpace(j.Salary.Currency))
		j.Salary.Period = strings.ToLower(strings.TrimSpace(j.Salary.Period))
	}
}

// Validate returns ErrInvalid when title or companySlug is missing.
func (j *Job) Validate() error {
	switch {
	case j.Title == "":
		return eris.Wrapf(ErrInvalid, "job at %q: missing title", j.CompanySlug)
	case j.CompanySlug == "":
		return eris.Wrapf(ErrInvalid, "job %q: missing companySlug", j.Title)
	}
	return nil
}

// HasSalary reports whether the salary block carries any value.
func (j *Job) HasSalary() bool {
	s := j.Salary
	return s != nil && (s.MinValue.Valid || s.MaxValue.Valid || s.Currency != "" || s.Period != "")
}
