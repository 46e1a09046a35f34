package staging

// Table describes one staging table: its DDL body and the columns the
// loader writes with COPY.
type Table struct {
	Name string
	DDL  string   // column definitions for CREATE TABLE
	Copy []string // COPY column list; empty for tables the loader never writes
}

// Staging table names.
const (
	Company         = "company"
	CompanyMarket   = "company_market"
	CompanyStage    = "company_stage"
	CompanyOffice   = "company_office"
	CompanyInvestor = "company_investor"
	CompanyFounder  = "company_founder"
	CompanyParent   = "company_parent"
	Job             = "job"
	JobLocation     = "job_location"
	JobSalary       = "job_salary"
	JobMap          = "job_map"
)

// CompanyColumns are the scalar company columns shared with jobdb.company.
var CompanyColumns = []string{
	"slug", "name", "description", "domain", "email_domains", "staff_count",
	"logos", "website", "data_source",
}

// JobColumns are the scalar job columns shared with jobdb.job.
var JobColumns = []string{
	"title", "apply_url", "url", "remote", "hybrid", "posted_at",
	"manager", "consultant", "contractor", "min_years_exp", "max_years_exp",
	"skills", "required_skills", "preferred_skills", "departments",
	"job_types", "job_functions", "job_seniorities", "regions", "data_source",
}

// Tables lists every staging table in creation order. Intermediate tables
// carry no foreign keys; they are joined on natural keys.
var Tables = []Table{
	{
		Name: Company,
		DDL: `slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			email_domains TEXT[] NOT NULL DEFAULT '{}',
			staff_count INTEGER,
			logos JSONB,
			website TEXT NOT NULL DEFAULT '',
			data_source TEXT NOT NULL DEFAULT '',
			loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()`,
		Copy: CompanyColumns,
	},
	{
		Name: CompanyMarket,
		DDL: `id BIGSERIAL PRIMARY KEY,
			company_slug TEXT NOT NULL,
			market TEXT NOT NULL`,
		Copy: []string{"company_slug", "market"},
	},
	{
		Name: CompanyStage,
		DDL: `id BIGSERIAL PRIMARY KEY,
			company_slug TEXT NOT NULL,
			stage TEXT NOT NULL`,
		Copy: []string{"company_slug", "stage"},
	},
	{
		Name: CompanyOffice,
		DDL: `id BIGSERIAL PRIMARY KEY,
			company_slug TEXT NOT NULL,
			location TEXT NOT NULL`,
		Copy: []string{"company_slug", "location"},
	},
	{
		Name: CompanyInvestor,
		DDL: `id BIGSERIAL PRIMARY KEY,
			company_slug TEXT NOT NULL,
			investor_slug TEXT NOT NULL,
			investor_name TEXT NOT NULL`,
		Copy: []string{"company_slug", "investor_slug", "investor_name"},
	},
	{
		Name: CompanyFounder,
		DDL: `id BIGSERIAL PRIMARY KEY,
			company_slug TEXT NOT NULL,
			founder_id TEXT NOT NULL,
			name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			linkedin TEXT NOT NULL DEFAULT '',
			twitter TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT ''`,
		Copy: []string{"company_slug", "founder_id", "name", "title", "linkedin", "twitter", "bio", "image_url"},
	},
	{
		Name: CompanyParent,
		DDL: `id BIGSERIAL PRIMARY KEY,
			company_slug TEXT NOT NULL,
			parent_slug TEXT NOT NULL`,
		Copy: []string{"company_slug", "parent_slug"},
	},
	{
		Name: Job,
		DDL: `seq BIGSERIAL,
			row_id UUID PRIMARY KEY,
			company_slug TEXT NOT NULL,
			title TEXT NOT NULL,
			apply_url TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			remote BOOLEAN NOT NULL DEFAULT false,
			hybrid BOOLEAN NOT NULL DEFAULT false,
			posted_at TIMESTAMPTZ,
			manager BOOLEAN NOT NULL DEFAULT false,
			consultant BOOLEAN NOT NULL DEFAULT false,
			contractor BOOLEAN NOT NULL DEFAULT false,
			min_years_exp INTEGER,
			max_years_exp INTEGER,
			skills TEXT[] NOT NULL DEFAULT '{}',
			required_skills TEXT[] NOT NULL DEFAULT '{}',
			preferred_skills TEXT[] NOT NULL DEFAULT '{}',
			departments TEXT[] NOT NULL DEFAULT '{}',
			job_types TEXT[] NOT NULL DEFAULT '{}',
			job_functions TEXT[] NOT NULL DEFAULT '{}',
			job_seniorities TEXT[] NOT NULL DEFAULT '{}',
			regions TEXT[] NOT NULL DEFAULT '{}',
			data_source TEXT NOT NULL DEFAULT ''`,
		Copy: append([]string{"row_id", "company_slug"}, JobColumns...),
	},
	{
		Name: JobLocation,
		DDL: `id BIGSERIAL PRIMARY KEY,
			job_row_id UUID NOT NULL,
			location TEXT NOT NULL`,
		Copy: []string{"job_row_id", "location"},
	},
	{
		Name: JobSalary,
		DDL: `id BIGSERIAL PRIMARY KEY,
			job_row_id UUID NOT NULL,
			min_value NUMERIC,
			max_value NUMERIC,
			currency TEXT NOT NULL DEFAULT '',
			period TEXT NOT NULL DEFAULT ''`,
		Copy: []string{"job_row_id", "min_value", "max_value", "currency", "period"},
	},
	{
		Name: JobMap,
		DDL: `row_id UUID PRIMARY KEY,
			job_id BIGINT NOT NULL`,
	},
}
