package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClampsBounds(t *testing.T) {
	p := Pagination{Page: 0, PageSize: 0}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.PageSize)

	p = Pagination{Page: 3, PageSize: 1000}.Normalize()
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)
}

func TestBuildPageInfo(t *testing.T) {
	info := BuildPageInfo(Pagination{Page: 2, PageSize: 10}, 21)
	assert.Equal(t, 2, info.Page)
	assert.Equal(t, int64(21), info.Total)
	assert.Equal(t, 3, info.TotalPages)

	empty := BuildPageInfo(Pagination{}, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.Equal(t, 1, empty.Page)
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Pagination{Page: 1, PageSize: 5}.Offset())
	assert.Equal(t, 10, Pagination{Page: 3, PageSize: 5}.Offset())
}
