package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dtindex/internal/dataset"
	apierrors "dtindex/internal/errors"
	"dtindex/internal/query"
	"dtindex/internal/schema"
	"dtindex/internal/services"
	"dtindex/internal/shared/testutil"
)

// MockIndexService is a mock implementation of IndexService
type MockIndexService struct {
	mock.Mock
}

func (m *MockIndexService) Overview(ctx context.Context) (services.DatasetOverview, error) {
	args := m.Called()
	return args.Get(0).(services.DatasetOverview), args.Error(1)
}

func (m *MockIndexService) Schema(ctx context.Context) (services.SchemaStatus, error) {
	args := m.Called()
	return args.Get(0).(services.SchemaStatus), args.Error(1)
}

func (m *MockIndexService) OverrideSchema(ctx context.Context, mapping schema.Roles) (services.SchemaStatus, error) {
	args := m.Called(mapping)
	return args.Get(0).(services.SchemaStatus), args.Error(1)
}

func (m *MockIndexService) Reload(ctx context.Context) (services.DatasetOverview, error) {
	args := m.Called()
	return args.Get(0).(services.DatasetOverview), args.Error(1)
}

func (m *MockIndexService) ListEntities(ctx context.Context, group string) ([]query.EntityRef, error) {
	args := m.Called(group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]query.EntityRef), args.Error(1)
}

func (m *MockIndexService) Profile(ctx context.Context, req services.ProfileRequest) (services.EntityProfile, error) {
	args := m.Called(req)
	return args.Get(0).(services.EntityProfile), args.Error(1)
}

func (m *MockIndexService) GroupAverage(ctx context.Context, group string, w query.Window) (services.GroupReport, error) {
	args := m.Called(group, w)
	return args.Get(0).(services.GroupReport), args.Error(1)
}

func (m *MockIndexService) Compare(ctx context.Context, req services.CompareRequest) (services.Comparison, error) {
	args := m.Called(req)
	return args.Get(0).(services.Comparison), args.Error(1)
}

var cmb = query.EntityRef{Identifier: "600036", Name: "招商银行", Group: "J66", GroupName: "货币金融服务"}

func newIndexRouter(t *testing.T, svc IndexService) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	handler := NewIndexHandler(svc, logger, apierrors.NewErrorHandler(logger, false))

	r := chi.NewRouter()
	r.Route("/api", handler.RegisterRoutes)
	return r
}

func serve(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestIndexHandler_GetDataset(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("Overview").Return(services.DatasetOverview{
		Overview:    query.Overview{Rows: 12, Entities: 6, Groups: 3},
		RolesSource: services.SourceInferred,
	}, nil)

	rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/dataset", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(12), data["rows"])
	assert.Equal(t, "inferred", data["roles_source"])
	svc.AssertExpectations(t)
}

func TestIndexHandler_GetDataset_Unavailable(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("Overview").Return(services.DatasetOverview{}, fmt.Errorf("load: %w", dataset.ErrFileNotFound))

	rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/dataset", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, apierrors.TypeDatasetNotFound, body["type"])
	assert.NotEmpty(t, body["guidance"])
}

func TestIndexHandler_GetSchema_Unresolved(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("Schema").Return(services.SchemaStatus{
		Resolved: false,
		Missing:  []schema.Role{schema.RoleMetric},
		Columns:  []dataset.ColumnInfo{{Name: "ticker"}},
	}, nil)

	rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/dataset/schema", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, false, data["resolved"])
	assert.Equal(t, []interface{}{"metric"}, data["missing_roles"])
}

func TestIndexHandler_PutSchema(t *testing.T) {
	mapping := schema.Roles{Identifier: "ticker", Period: "fy", Metric: "score"}

	t.Run("applies mapping", func(t *testing.T) {
		svc := new(MockIndexService)
		svc.On("OverrideSchema", mapping).Return(services.SchemaStatus{Resolved: true, Roles: mapping, Source: services.SourceOverride}, nil)

		rec := serve(t, newIndexRouter(t, svc), http.MethodPut, "/api/dataset/schema",
			`{"identifier":" ticker ","period":"fy","metric":"score"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "override", decode(t, rec)["data"].(map[string]interface{})["source"])
		svc.AssertExpectations(t)
	})

	t.Run("missing metric", func(t *testing.T) {
		svc := new(MockIndexService)
		rec := serve(t, newIndexRouter(t, svc), http.MethodPut, "/api/dataset/schema",
			`{"identifier":"ticker","period":"fy"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_FAILED", decode(t, rec)["error_code"])
		svc.AssertNotCalled(t, "OverrideSchema", mock.Anything)
	})

	t.Run("unknown column", func(t *testing.T) {
		svc := new(MockIndexService)
		svc.On("OverrideSchema", mapping).Return(services.SchemaStatus{}, fmt.Errorf("%w: score", schema.ErrUnknownColumn))

		rec := serve(t, newIndexRouter(t, svc), http.MethodPut, "/api/dataset/schema",
			`{"identifier":"ticker","period":"fy","metric":"score"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("wrong content type", func(t *testing.T) {
		svc := new(MockIndexService)
		req := httptest.NewRequest(http.MethodPut, "/api/dataset/schema", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		newIndexRouter(t, svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestIndexHandler_Reload(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("Reload").Return(services.DatasetOverview{Overview: query.Overview{Rows: 12}}, nil)

	rec := serve(t, newIndexRouter(t, svc), http.MethodPost, "/api/dataset/reload", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestIndexHandler_ListEntities(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("ListEntities", "J66").Return([]query.EntityRef{cmb, {Identifier: "600000", Group: "J66"}}, nil)

	rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/entities?group=J66", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])
}

func TestIndexHandler_GetEntity(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		want       *services.ProfileRequest
		err        error
		wantStatus int
	}{
		{
			name:   "by identifier with window",
			target: "/api/entities/600036?by=id&from=2019&to=2021&period=2020",
			want: &services.ProfileRequest{
				Query:  query.Query{By: query.ByIdentifier, Value: "600036"},
				Window: query.Window{From: 2019, To: 2021},
				Period: 2020,
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "by chinese name",
			target:     "/api/entities/" + url.PathEscape("招商银行"),
			want:       &services.ProfileRequest{Query: query.Query{Value: "招商银行"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "short identifier",
			target:     "/api/entities/12345",
			want:       &services.ProfileRequest{Query: query.Query{Value: "12345"}},
			err:        query.ErrInvalidIdentifierFormat,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown entity",
			target:     "/api/entities/999999",
			want:       &services.ProfileRequest{Query: query.Query{Value: "999999"}},
			err:        fmt.Errorf("%w: 999999", query.ErrNotFound),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "non-numeric from",
			target:     "/api/entities/600036?from=last",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad lookup kind",
			target:     "/api/entities/600036?by=ticker",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockIndexService)
			if tt.want != nil {
				svc.On("Profile", *tt.want).Return(services.EntityProfile{Entity: cmb}, tt.err)
			}

			rec := serve(t, newIndexRouter(t, svc), http.MethodGet, tt.target, "")

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.want == nil {
				svc.AssertNotCalled(t, "Profile", mock.Anything)
			} else {
				svc.AssertExpectations(t)
			}
		})
	}
}

func TestIndexHandler_GetGroupAverage(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("GroupAverage", "C15", query.Window{From: 2019}).Return(services.GroupReport{
		Aggregate: query.GroupAggregate{Group: "C15", Points: []query.Point{{Period: 2019, Value: 29}}, Counts: []int{1}},
	}, nil)

	rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/groups/C15/average?from=2019", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	agg := decode(t, rec)["data"].(map[string]interface{})["aggregate"].(map[string]interface{})
	assert.Equal(t, "C15", agg["group"])
}

func TestIndexHandler_GetGroupAverage_NoGroupColumn(t *testing.T) {
	svc := new(MockIndexService)
	svc.On("GroupAverage", "C15", query.Window{}).Return(services.GroupReport{}, query.ErrNoGroupColumn)

	rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/groups/C15/average", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func comparison() services.Comparison {
	return services.Comparison{
		Entity: cmb,
		Group:  "J66",
		Table: query.JoinForDisplay(
			query.NamedSeries{Name: cmb.Label(), Points: []query.Point{{Period: 2019, Value: 45.2}, {Period: 2020, Value: 50.1}}},
			query.NamedSeries{Name: "行业平均指数", Points: []query.Point{{Period: 2019, Value: 45.2}, {Period: 2020, Value: 55.05}}},
		),
	}
}

func TestIndexHandler_Compare(t *testing.T) {
	want := services.CompareRequest{
		Entity: query.Query{By: query.ByIdentifier, Value: "600036"},
		Peer:   &query.Query{By: query.ByIdentifier, Value: "600000"},
	}

	t.Run("json", func(t *testing.T) {
		svc := new(MockIndexService)
		svc.On("Compare", want).Return(comparison(), nil)

		rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/compare?entity=600036&peer=600000&by=id", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		data := decode(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "J66", data["group"])
		svc.AssertExpectations(t)
	})

	t.Run("csv", func(t *testing.T) {
		svc := new(MockIndexService)
		svc.On("Compare", want).Return(comparison(), nil)

		rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/compare?entity=600036&peer=600000&by=id&format=csv", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "compare_600036.csv")
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "2020,50.10,55.05", lines[2])
	})

	t.Run("group mismatch", func(t *testing.T) {
		svc := new(MockIndexService)
		svc.On("Compare", want).Return(services.Comparison{}, query.ErrGroupMismatch)

		rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/compare?entity=600036&peer=600000&by=id", "")

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, apierrors.TypeGroupMismatch, decode(t, rec)["type"])
	})

	t.Run("peer equals entity", func(t *testing.T) {
		svc := new(MockIndexService)
		rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/compare?entity=600036&peer=600036", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Compare", mock.Anything)
	})

	t.Run("missing entity", func(t *testing.T) {
		svc := new(MockIndexService)
		rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/compare", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown format", func(t *testing.T) {
		svc := new(MockIndexService)
		rec := serve(t, newIndexRouter(t, svc), http.MethodGet, "/api/compare?entity=600036&format=xlsx", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_FAILED", decode(t, rec)["error_code"])
		svc.AssertNotCalled(t, "Compare", mock.Anything)
	})
}
