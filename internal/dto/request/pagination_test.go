package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginatedRequest(t *testing.T) {
	tests := []struct {
		name       string
		req        PaginatedRequest
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{name: "first page", req: PaginatedRequest{Page: 1, PerPage: 20}, wantPage: 1, wantLimit: 20, wantOffset: 0},
		{name: "third page", req: PaginatedRequest{Page: 3, PerPage: 5}, wantPage: 3, wantLimit: 5, wantOffset: 10},
		{name: "unset", req: PaginatedRequest{}, wantPage: 1, wantLimit: DefaultPerPage, wantOffset: 0},
		{name: "zero per page uses default", req: PaginatedRequest{Page: 2}, wantPage: 2, wantLimit: DefaultPerPage, wantOffset: 10},
		{name: "oversized page is clamped", req: PaginatedRequest{Page: 3, PerPage: 1000}, wantPage: 3, wantLimit: MaxPerPage, wantOffset: 200},
		{name: "negative page", req: PaginatedRequest{Page: -4, PerPage: 10}, wantPage: 1, wantLimit: 10, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantPage, tt.req.PageNumber())
			assert.Equal(t, tt.wantLimit, tt.req.Limit())
			assert.Equal(t, tt.wantOffset, tt.req.Offset())
		})
	}
}
