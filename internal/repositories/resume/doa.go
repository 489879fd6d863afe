package resume

import (
	"database/sql"
	"strings"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const resumesTable = "resumes"

type ResumeRow struct {
	ID               string          `db:"id"`
	UserID           sql.NullString  `db:"user_id"`
	Name             sql.NullString  `db:"name"`
	JobType          sql.NullString  `db:"job_type"`
	Region           sql.NullString  `db:"region"`
	SelfIntroduction sql.NullString  `db:"self_introduction"`
	DesiredDailyWage sql.NullFloat64 `db:"desired_daily_wage"`
	Skills           sql.NullString  `db:"skills"`
	History          sql.NullFloat64 `db:"history"`
	IsActive         sql.NullBool    `db:"is_active"`
}

var resumeStruct = database.NewStruct(new(ResumeRow))

func ToProfile(row *ResumeRow) models.Profile {
	p := models.Profile{
		ID:          row.ID,
		Title:       row.Name.String,
		Category:    row.JobType.String,
		Region:      row.Region.String,
		Description: row.SelfIntroduction.String,
	}
	if s := strings.TrimSpace(row.Skills.String); s != "" {
		p.Skills = []string{s}
	}
	if row.History.Valid {
		years := row.History.Float64
		p.ExperienceYears = &years
	}
	if row.DesiredDailyWage.Valid {
		wage := row.DesiredDailyWage.Float64
		p.Wage = &wage
	}
	return p
}
