package api

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestRequestValidation(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name    string
		req     interface{}
		wantErr bool
	}{
		{"entity by id", &EntityQueryRequest{Query: "600036"}, false},
		{"entity with window", &EntityQueryRequest{Query: "600036", WindowRequest: WindowRequest{From: 2015, To: 2020}}, false},
		{"entity missing query", &EntityQueryRequest{}, true},
		{"entity bad lookup kind", &EntityQueryRequest{Query: "600036", By: "code"}, true},
		{"entity bad period", &EntityQueryRequest{Query: "600036", Period: 20}, true},
		{"group average", &GroupAverageRequest{Group: "J66"}, false},
		{"group missing", &GroupAverageRequest{}, true},
		{"list all", &EntityListRequest{}, false},
		{"compare with peer", &CompareRequest{Entity: "600036", Peer: "601398"}, false},
		{"compare with itself", &CompareRequest{Entity: "600036", Peer: "600036"}, true},
		{"compare csv", &CompareRequest{Entity: "600036", Format: "csv"}, false},
		{"compare unknown format", &CompareRequest{Entity: "600036", Format: "xlsx"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
