package http

import (
	"context"

	"dtindex/internal/query"
	"dtindex/internal/schema"
	"dtindex/internal/services"
)

// IndexService is the query surface the index handler needs.
type IndexService interface {
	Overview(ctx context.Context) (services.DatasetOverview, error)
	Schema(ctx context.Context) (services.SchemaStatus, error)
	OverrideSchema(ctx context.Context, mapping schema.Roles) (services.SchemaStatus, error)
	Reload(ctx context.Context) (services.DatasetOverview, error)
	ListEntities(ctx context.Context, group string) ([]query.EntityRef, error)
	Profile(ctx context.Context, req services.ProfileRequest) (services.EntityProfile, error)
	GroupAverage(ctx context.Context, group string, w query.Window) (services.GroupReport, error)
	Compare(ctx context.Context, req services.CompareRequest) (services.Comparison, error)
}

// HealthChecker reports process and dataset health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
	Version() map[string]interface{}
}
