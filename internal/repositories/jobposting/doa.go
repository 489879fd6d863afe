package jobposting

import (
	"database/sql"
	"strings"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const jobPostingsTable = "job_postings"

type JobPostingRow struct {
	ID                      string          `db:"id"`
	UserID                  sql.NullString  `db:"user_id"`
	Title                   sql.NullString  `db:"title"`
	JobType                 sql.NullString  `db:"job_type"`
	Region                  sql.NullString  `db:"region"`
	SiteDescription         sql.NullString  `db:"site_description"`
	DailyWage               sql.NullFloat64 `db:"daily_wage"`
	RequiredSkills          sql.NullString  `db:"required_skills"`
	RequiredExperienceYears sql.NullFloat64 `db:"required_experience_years"`
	IsActive                sql.NullBool    `db:"is_active"`
	CreatedTS               sql.NullTime    `db:"created_at"`
}

var jobPostingStruct = database.NewStruct(new(JobPostingRow))

func ToProfile(row *JobPostingRow) models.Profile {
	p := models.Profile{
		ID:          row.ID,
		Title:       row.Title.String,
		Category:    row.JobType.String,
		Region:      row.Region.String,
		Description: row.SiteDescription.String,
	}
	if s := strings.TrimSpace(row.RequiredSkills.String); s != "" {
		p.Skills = []string{s}
	}
	if row.RequiredExperienceYears.Valid {
		years := row.RequiredExperienceYears.Float64
		p.RequiredExperienceYears = &years
	}
	if row.DailyWage.Valid {
		wage := row.DailyWage.Float64
		p.Wage = &wage
	}
	return p
}
