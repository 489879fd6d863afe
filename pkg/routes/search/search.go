// Package search exposes similarity ranking over HTTP.
package search

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

var validate = validator.New()

// UserStore lists users from the record store.
type UserStore interface {
	List(ctx context.Context, opts user.ListOptions) ([]models.Record, error)
}

type Handler struct {
	orchestrator *similarity.Orchestrator
	users        UserStore
	logger       ectologger.Logger
}

// NewHandler creates the search handler. users may be nil, in which case
// every request must carry its own records.
func NewHandler(orchestrator *similarity.Orchestrator, users UserStore, logger ectologger.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		users:        users,
		logger:       logger,
	}
}

// Register registers search routes
func Register(g *echo.Group, h *Handler) {
	g.POST("", h.Search)
	g.POST("/compare", h.Compare)
}

// SearchRequest is the request body for a similarity search. Without records
// the search runs over users from the record store.
type SearchRequest struct {
	Query         string          `json:"query" validate:"required"`
	Field         string          `json:"field" validate:"required"`
	Mode          string          `json:"mode,omitempty" validate:"omitempty,oneof=oracle lexical hybrid"`
	Limit         int             `json:"limit" validate:"gte=0"`
	MinSimilarity float64         `json:"min_similarity" validate:"gte=0,lte=100"`
	Role          string          `json:"role,omitempty"`
	Records       []models.Record `json:"records,omitempty"`
}

// Search ranks records by similarity to the query
func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	records := req.Records
	if len(records) == 0 {
		if h.users == nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "records are required when no record store is configured")
		}
		var err error
		records, err = h.users.List(ctx, user.ListOptions{Role: req.Role})
		if err != nil {
			return err
		}
	}

	result, err := h.orchestrator.Search(ctx, similarity.SearchRequest{
		Query:         req.Query,
		Field:         req.Field,
		Records:       records,
		Mode:          similarity.Mode(req.Mode),
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"field":   req.Field,
		"total":   result.TotalProcessed,
		"matched": result.TotalMatched,
	}).Info("Similarity search completed")

	return c.JSON(http.StatusOK, result)
}

// CompareRequest is the request body for comparing two texts
type CompareRequest struct {
	A     string `json:"a" validate:"required"`
	B     string `json:"b" validate:"required"`
	Label string `json:"label,omitempty"`
	Mode  string `json:"mode,omitempty" validate:"omitempty,oneof=oracle lexical hybrid"`
}

// Compare scores the similarity of two texts
func (h *Handler) Compare(c echo.Context) error {
	ctx := c.Request().Context()

	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	label := req.Label
	if label == "" {
		label = "text similarity"
	}

	score, err := h.orchestrator.ComparePair(ctx, req.A, req.B, label, similarity.Mode(req.Mode))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, score)
}
