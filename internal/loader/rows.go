package loader

import (
	"bytes"
	"encoding/json"

	"github.com/sells-group/jobdb/internal/model"
	"github.com/sells-group/jobdb/internal/staging"
)

// rowSet holds COPY rows keyed by staging table name. Row values follow
// the table's Copy column order.
type rowSet map[string][][]any

func (r rowSet) add(table string, row ...any) {
	r[table] = append(r[table], row)
}

func (r rowSet) merge(o rowSet) {
	for table, rows := range o {
		r[table] = append(r[table], rows...)
	}
}

func (l *Loader) companyRows(c model.Company) rowSet {
	rs := make(rowSet)
	rs.add(staging.Company,
		c.Slug, c.Name, c.Description, c.Domain, c.EmailDomains.Clean(),
		c.StaffCount.DB(), logosValue(c.Logos), c.Website, c.DataSource,
	)
	for _, m := range c.Markets.Clean() {
		rs.add(staging.CompanyMarket, c.Slug, m)
	}
	for _, s := range c.Stages.Clean() {
		rs.add(staging.CompanyStage, c.Slug, s)
	}
	for _, o := range c.OfficeLocations.Clean() {
		rs.add(staging.CompanyOffice, c.Slug, o)
	}
	for _, inv := range c.InvestorRefs() {
		rs.add(staging.CompanyInvestor, c.Slug, inv.Slug, inv.Name)
	}
	for _, f := range c.ValidFounders() {
		rs.add(staging.CompanyFounder, c.Slug, f.ID, f.Name, f.Title, f.LinkedIn, f.Twitter, f.Bio, f.ImageURL)
	}
	for _, p := range c.ParentRefs() {
		rs.add(staging.CompanyParent, c.Slug, p)
	}
	return rs
}

func (l *Loader) jobRows(j model.Job) rowSet {
	id := l.newID()
	rs := make(rowSet)
	rs.add(staging.Job,
		id, j.CompanySlug, j.Title, j.ApplyURL, j.URL,
		bool(j.Remote), bool(j.Hybrid), j.TimeStamp.DB(),
		bool(j.Manager), bool(j.Consultant), bool(j.Contractor),
		j.MinYearsExp.DB(), j.MaxYearsExp.DB(),
		j.Skills.Clean(), j.RequiredSkills.Clean(), j.PreferredSkills.Clean(),
		j.Departments.Clean(), j.JobTypes.Clean(), j.JobFunctions.Clean(),
		j.JobSeniorities.Clean(), j.Regions.Clean(), j.DataSource,
	)
	for _, loc := range j.Locations.Clean() {
		rs.add(staging.JobLocation, id, loc)
	}
	if j.HasSalary() {
		s := j.Salary
		rs.add(staging.JobSalary, id, s.MinValue.DB(), s.MaxValue.DB(), s.Currency, s.Period)
	}
	return rs
}

// logosValue returns raw logo JSON for a jsonb column, or nil when absent.
func logosValue(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}
