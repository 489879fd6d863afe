// Package duplicate exposes duplicate detection over HTTP.
package duplicate

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New()

// UserStore lists users from the record store.
type UserStore interface {
	List(ctx context.Context, opts user.ListOptions) ([]models.Record, error)
}

type Handler struct {
	detector *duplicates.Detector
	defaults duplicates.Options
	users    UserStore
	emitter  *events.Emitter
	logger   ectologger.Logger
}

// NewHandler creates the duplicate handler. defaults fill in whatever a
// request leaves out. users and emitter may be nil.
func NewHandler(detector *duplicates.Detector, defaults duplicates.Options, users UserStore, emitter *events.Emitter, logger ectologger.Logger) *Handler {
	return &Handler{
		detector: detector,
		defaults: defaults,
		users:    users,
		emitter:  emitter,
		logger:   logger,
	}
}

// Register registers duplicate detection routes
func Register(g *echo.Group, h *Handler) {
	g.POST("", h.Detect)
}

// DetectRequest is the request body for a detection run. Without records the
// run covers every user in the record store.
type DetectRequest struct {
	IdentifierField     string   `json:"identifier_field,omitempty"`
	SecondaryField      string   `json:"secondary_field,omitempty"`
	IdentifierThreshold *float64 `json:"identifier_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	SecondaryThreshold  *float64 `json:"secondary_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Analysis            string   `json:"analysis,omitempty" validate:"omitempty,oneof=basic advanced"`
	// Normalizer lists replace the configured ones when present, so an empty
	// list turns normalization off.
	IdentifierNormalizers []string        `json:"identifier_normalizers,omitempty"`
	SecondaryNormalizers  []string        `json:"secondary_normalizers,omitempty"`
	Records               []models.Record `json:"records,omitempty"`
}

func (h *Handler) options(req DetectRequest) duplicates.Options {
	opts := h.defaults
	if req.IdentifierField != "" {
		opts.IdentifierField = req.IdentifierField
	}
	if req.SecondaryField != "" {
		opts.SecondaryField = req.SecondaryField
	}
	if req.IdentifierThreshold != nil {
		opts.IdentifierThreshold = *req.IdentifierThreshold
	}
	if req.SecondaryThreshold != nil {
		opts.SecondaryThreshold = *req.SecondaryThreshold
	}
	if req.Analysis != "" {
		opts.Analysis = models.AnalysisMode(req.Analysis)
	}
	if req.IdentifierNormalizers != nil {
		opts.IdentifierNormalizers = req.IdentifierNormalizers
	}
	if req.SecondaryNormalizers != nil {
		opts.SecondaryNormalizers = req.SecondaryNormalizers
	}
	return opts
}

// Detect finds duplicate groups
func (h *Handler) Detect(c echo.Context) error {
	ctx := c.Request().Context()

	var req DetectRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	source := "request"
	records := req.Records
	if len(records) == 0 {
		if h.users == nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "records are required when no record store is configured")
		}
		var err error
		records, err = h.users.List(ctx, user.ListOptions{})
		if err != nil {
			return err
		}
		source = "users"
	}

	report, err := h.detector.Detect(ctx, records, h.options(req))
	if err != nil {
		return err
	}

	// the report is returned even if the event cannot be published
	if err := h.emitter.EmitDuplicatesDetected(ctx, source, report); err != nil {
		h.logger.WithContext(ctx).WithError(err).Warn("Failed to publish duplicate report")
	}

	return c.JSON(http.StatusOK, report)
}
