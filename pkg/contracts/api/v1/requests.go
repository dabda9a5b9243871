// Package api contains the request contracts of the index HTTP API.
// Version v1 represents the current stable API version.
package api

// WindowRequest is an inclusive period range. Zero bounds are open.
type WindowRequest struct {
	From int `json:"from" query:"from" validate:"omitempty,gte=1000,lte=9999"`
	To   int `json:"to" query:"to" validate:"omitempty,gte=1000,lte=9999"`
}

// EntityQueryRequest looks up one entity and its index history.
type EntityQueryRequest struct {
	WindowRequest
	Query  string `json:"query" param:"query" validate:"required,max=64"`
	By     string `json:"by" query:"by" validate:"omitempty,oneof=auto id name"`
	Period int    `json:"period" query:"period" validate:"omitempty,gte=1000,lte=9999"`
}

// GroupAverageRequest asks for the per-period mean of a group.
type GroupAverageRequest struct {
	WindowRequest
	Group string `json:"group" param:"group" validate:"required,max=32"`
}

// EntityListRequest lists entities, optionally inside one group.
type EntityListRequest struct {
	Group string `json:"group" query:"group" validate:"omitempty,max=32"`
}

// CompareRequest sets an entity against its group average and,
// optionally, a peer from the same group.
type CompareRequest struct {
	WindowRequest
	Entity string `json:"entity" query:"entity" validate:"required,max=64"`
	Peer   string `json:"peer" query:"peer" validate:"omitempty,max=64,nefield=Entity"`
	By     string `json:"by" query:"by" validate:"omitempty,oneof=auto id name"`
	Format string `json:"format" query:"format" validate:"omitempty,oneof=json csv"`
}

// SchemaOverrideRequest replaces the inferred column roles.
type SchemaOverrideRequest struct {
	Identifier string `json:"identifier" validate:"required,column"`
	Period     string `json:"period" validate:"required,column"`
	Metric     string `json:"metric" validate:"required,column"`
	Group      string `json:"group,omitempty"`
	GroupName  string `json:"group_name,omitempty"`
	Name       string `json:"name,omitempty"`
}
