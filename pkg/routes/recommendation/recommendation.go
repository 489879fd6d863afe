// Package recommendation exposes job posting recommendations over HTTP.
package recommendation

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/jobposting"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/recommend"
)

var validate = validator.New()

// ResumeStore loads seeker profiles.
type ResumeStore interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// PostingStore lists candidate postings.
type PostingStore interface {
	ListActive(ctx context.Context, opts jobposting.ListOptions) ([]models.Profile, error)
}

type Handler struct {
	recommender *recommend.Recommender
	criteria    []recommend.CriterionSpec
	resumes     ResumeStore
	postings    PostingStore
	emitter     *events.Emitter
	logger      ectologger.Logger
}

// NewHandler creates the recommendation handler. criteria are used when a
// request names none; nil means the standard five. The stores and emitter may be nil.
func NewHandler(recommender *recommend.Recommender, criteria []recommend.CriterionSpec, resumes ResumeStore, postings PostingStore, emitter *events.Emitter, logger ectologger.Logger) *Handler {
	return &Handler{
		recommender: recommender,
		criteria:    criteria,
		resumes:     resumes,
		postings:    postings,
		emitter:     emitter,
		logger:      logger,
	}
}

// Register registers recommendation routes
func Register(g *echo.Group, h *Handler) {
	g.POST("", h.Recommend)
}

// RecommendRequest is the request body for a recommendation run. The seeker
// is given inline or by résumé id; candidates default to active postings,
// optionally narrowed by category and region.
type RecommendRequest struct {
	ResumeID   string                    `json:"resume_id,omitempty" validate:"required_without=Seeker"`
	Seeker     *models.Profile           `json:"seeker,omitempty"`
	Candidates []models.Profile          `json:"candidates,omitempty"`
	Category   string                    `json:"category,omitempty"`
	Region     string                    `json:"region,omitempty"`
	Criteria   []recommend.CriterionSpec `json:"criteria,omitempty"`
	TopK       int                       `json:"top_k" validate:"gte=0,lte=100"`
}

// RecommendResponse lists the ranked postings for a seeker
type RecommendResponse struct {
	SeekerID        string                  `json:"seeker_id"`
	TotalCandidates int                     `json:"total_candidates"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

// Recommend ranks postings for a seeker
func (h *Handler) Recommend(c echo.Context) error {
	ctx := c.Request().Context()

	var req RecommendRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	seeker, err := h.seeker(ctx, req)
	if err != nil {
		return err
	}
	candidates, err := h.candidates(ctx, req)
	if err != nil {
		return err
	}

	criteria := req.Criteria
	if len(criteria) == 0 {
		criteria = h.criteria
	}

	recs, err := h.recommender.Recommend(ctx, *seeker, candidates, criteria, req.TopK)
	if err != nil {
		return err
	}

	if err := h.emitter.EmitRecommendationsRanked(ctx, seeker.ID, len(candidates), recs); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to publish recommendations")
	}

	return c.JSON(http.StatusOK, RecommendResponse{
		SeekerID:        seeker.ID,
		TotalCandidates: len(candidates),
		Recommendations: recs,
	})
}

func (h *Handler) seeker(ctx context.Context, req RecommendRequest) (*models.Profile, error) {
	if req.Seeker != nil {
		return req.Seeker, nil
	}
	if h.resumes == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "seeker is required when no record store is configured")
	}
	return h.resumes.GetByID(ctx, req.ResumeID)
}

func (h *Handler) candidates(ctx context.Context, req RecommendRequest) ([]models.Profile, error) {
	if len(req.Candidates) > 0 {
		return req.Candidates, nil
	}
	if h.postings == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "candidates are required when no record store is configured")
	}
	return h.postings.ListActive(ctx, jobposting.ListOptions{
		Category: req.Category,
		Region:   req.Region,
	})
}
