package user

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ListOptions narrows a user listing.
type ListOptions struct {
	Role   string
	Limit  int
	Offset int
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

// List returns users as records ordered by id.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]models.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "user.Repository.List")
	defer span.End()

	query, args := listQuery(opts)

	var rows []UserRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list users")
	}

	records := make([]models.Record, len(rows))
	for i := range rows {
		records[i] = ToRecord(&rows[i])
	}
	return records, nil
}

func listQuery(opts ListOptions) (string, []any) {
	sb := userStruct.SelectFrom(usersTable)
	if opts.Role != "" {
		sb.Where(sb.Equal("role", opts.Role))
	}
	sb.OrderBy("id ASC")
	sb.Page(opts.Limit, opts.Offset)
	return sb.Build()
}
