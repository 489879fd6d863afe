package resume

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID loads an active résumé as a seeker profile.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "resume.Repository.GetByID")
	defer span.End()

	query, args := getByIDQuery(id)

	var row ResumeRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "resume %s not found", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("resume_id", id).Error("Failed to get resume")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resume")
	}

	profile := ToProfile(&row)
	return &profile, nil
}

func getByIDQuery(id string) (string, []any) {
	sb := resumeStruct.SelectFrom(resumesTable)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("is_active", true),
	)
	sb.Limit(1)
	return sb.Build()
}
