package jobposting

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ListOptions narrows the active posting listing.
type ListOptions struct {
	Category string
	Region   string
	Limit    int
}

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

// ListActive returns active postings, newest first.
func (r *Repository) ListActive(ctx context.Context, opts ListOptions) ([]models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "jobposting.Repository.ListActive")
	defer span.End()

	query, args := listActiveQuery(opts)

	var rows []JobPostingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list job postings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list job postings")
	}

	profiles := make([]models.Profile, len(rows))
	for i := range rows {
		profiles[i] = ToProfile(&rows[i])
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"category": opts.Category,
		"region":   opts.Region,
		"count":    len(profiles),
	}).Debug("Listed active job postings")

	return profiles, nil
}

func listActiveQuery(opts ListOptions) (string, []any) {
	sb := jobPostingStruct.SelectFrom(jobPostingsTable)
	sb.Where(sb.Equal("is_active", true))
	if opts.Category != "" {
		sb.Where(sb.Equal("job_type", opts.Category))
	}
	if opts.Region != "" {
		sb.Where(sb.Like("region", opts.Region+"%"))
	}
	sb.OrderBy("created_at DESC", "id ASC")
	sb.Page(opts.Limit, 0)
	return sb.Build()
}
