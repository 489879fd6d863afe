package duplicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeUsers struct {
	records []models.Record
}

func (f *fakeUsers) List(_ context.Context, _ user.ListOptions) ([]models.Record, error) {
	return f.records, nil
}

type fakePublisher struct {
	events []*kafka.Event
}

func (f *fakePublisher) PublishEvent(_ context.Context, event *kafka.Event) error {
	f.events = append(f.events, event)
	return nil
}

func newServer(users UserStore, publisher events.Publisher) *echo.Echo {
	var emitter *events.Emitter
	if publisher != nil {
		emitter = events.NewEmitter(publisher, testLogger())
	}
	h := NewHandler(duplicates.NewDetector(testLogger()), duplicates.DefaultOptions(), users, emitter, testLogger())

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	Register(e.Group("/api/v1/duplicates"), h)
	return e
}

func post(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/duplicates", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDetect(t *testing.T) {
	t.Run("should group the records in the body", func(t *testing.T) {
		e := newServer(nil, nil)
		rec := post(e, `{"records": [
			{"id": "1", "email": "aa@bbb", "username": "first"},
			{"id": "2", "email": "AA@bbb ", "username": "second"},
			{"id": "3", "email": "kim@example.com", "username": "kim"}
		]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var report models.DuplicateReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		require.NotEmpty(t, report.Groups)
		assert.Equal(t, models.GroupKindExactIdentifier, report.Groups[0].Kind)
		assert.Equal(t, 1.0, report.Groups[0].Confidence)
		assert.Equal(t, 3, report.Summary.TotalRecords)
	})

	t.Run("should apply request thresholds", func(t *testing.T) {
		e := newServer(nil, nil)
		body := `{"identifier_field": "username", "secondary_field": "nickname", "identifier_threshold": %s,
			"records": [{"username": "kim"}, {"username": "kimm"}]}`

		rec := post(e, strings.Replace(body, "%s", "0.8", 1))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report models.DuplicateReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Empty(t, report.Groups)

		rec = post(e, strings.Replace(body, "%s", "0.7", 1))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		require.Len(t, report.Groups, 1)
		assert.Equal(t, models.GroupKindFuzzyIdentifier, report.Groups[0].Kind)
		assert.InDelta(t, 0.75, report.Groups[0].Confidence, 1e-9)
	})

	t.Run("should apply request normalizers", func(t *testing.T) {
		e := newServer(nil, nil)
		records := `"records": [
			{"email": "kim@north.org", "username": "j.doe"},
			{"email": "lee@south.org", "username": "jdoe"}
		]`

		rec := post(e, `{"analysis": "basic", `+records+`}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report models.DuplicateReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Empty(t, report.Groups)

		rec = post(e, `{"analysis": "basic", "secondary_normalizers": ["remove_punctuation"], `+records+`}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		require.Len(t, report.Groups, 1)
		assert.Equal(t, models.GroupKindExactSecondaryKey, report.Groups[0].Kind)
	})

	t.Run("should scan users from the store and publish the report", func(t *testing.T) {
		publisher := &fakePublisher{}
		users := &fakeUsers{records: []models.Record{
			{"id": "u1", "email": "kim@example.com", "username": "kim"},
			{"id": "u2", "email": "kim@example.com", "username": "kim2"},
		}}
		e := newServer(users, publisher)
		rec := post(e, `{}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		require.Len(t, publisher.events, 1)
		assert.Equal(t, string(events.EventTypeDuplicatesDetected), publisher.events[0].EventType)
		assert.Equal(t, "users", publisher.events[0].Key)
	})

	t.Run("should reject invalid requests", func(t *testing.T) {
		e := newServer(nil, nil)
		for _, body := range []string{
			`{"identifier_threshold": 2, "records": [{"email": "a@b"}]}`,
			`{"analysis": "deep", "records": [{"email": "a@b"}]}`,
			`{"identifier_normalizers": ["soundex"], "records": [{"email": "a@b"}]}`,
			`{}`,
		} {
			rec := post(e, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})
}
