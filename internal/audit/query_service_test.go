package audit

import (
	"testing"
)

// TestNormalizePage 测试分页参数规范化
func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name         string
		page         int
		pageSize     int
		wantPage     int
		wantPageSize int
	}{
		{"正常参数", 2, 50, 2, 50},
		{"页码为0", 0, 20, 1, 20},
		{"页码为负", -5, 20, 1, 20},
		{"页大小为0", 1, 0, 1, defaultPageSize},
		{"页大小为负", 1, -10, 1, defaultPageSize},
		{"页大小超上限", 1, 1000, 1, maxPageSize},
		{"页大小恰为上限", 1, maxPageSize, 1, maxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, pageSize := normalizePage(tt.page, tt.pageSize)
			if page != tt.wantPage || pageSize != tt.wantPageSize {
				t.Errorf("normalizePage(%d, %d) = (%d, %d), 应该是 (%d, %d)",
					tt.page, tt.pageSize, page, pageSize, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}
