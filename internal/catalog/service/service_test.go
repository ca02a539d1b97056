package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mrpledger/internal/apperror"
	"github.com/smallbiznis/mrpledger/internal/cache"
	"github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"github.com/smallbiznis/mrpledger/internal/catalog/repository"
	"github.com/smallbiznis/mrpledger/internal/testutil"
	"github.com/smallbiznis/mrpledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (domain.Service, *testutil.Fixtures) {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Cache: cache.NewCatalogCache(),
	})
	return svc, testutil.NewFixtures(t, db, node, time.Now())
}

func TestGetBom(t *testing.T) {
	svc, fx := newTestService(t)
	ctx := context.Background()

	fx.Part("P-1", 10)
	fx.Part("P-2", 10)
	product := fx.Product("WIDGET", testutil.Line("P-2", 1), testutil.Line("P-1", 2))
	empty := fx.Product("EMPTY")

	lines, err := svc.GetBom(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "P-1", lines[0].PartNumber)

	_, err = svc.GetBom(ctx, empty.ID)
	assert.ErrorIs(t, err, domain.ErrEmptyBom)
	assert.True(t, apperror.Is(err, apperror.KindConfiguration))

	_, err = svc.GetBom(ctx, snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGetBomServesFromCacheUntilInvalidated(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	fx := testutil.NewFixtures(t, db, node, time.Now())
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide(), Cache: cache.NewCatalogCache()})
	ctx := context.Background()

	fx.Part("P-1", 10)
	fx.Part("P-9", 10)
	product := fx.Product("WIDGET", testutil.Line("P-1", 2))

	_, err := svc.GetBom(ctx, product.ID)
	require.NoError(t, err)

	require.NoError(t, db.Create(&domain.ProductBomLine{
		ID: node.Generate(), ProductID: product.ID, PartNumber: "P-9", QuantityNeeded: 1,
	}).Error)

	lines, err := svc.GetBom(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 1, "cached bom")

	svc.InvalidateBom(product.ID)
	lines, err = svc.GetBom(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestPartsQueries(t *testing.T) {
	svc, fx := newTestService(t)
	ctx := context.Background()

	fx.Part("P-1", 5, testutil.WithReorder(10, 2))
	fx.Part("P-2", 50, testutil.WithReorder(10, 2))
	fx.Part("P-3", 10, testutil.WithReorder(10, 2))

	part, err := svc.GetPart(ctx, " P-2 ")
	require.NoError(t, err)
	assert.Equal(t, int64(50), part.CurrentStock)

	_, err = svc.GetPart(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrPartNotFound)
	_, err = svc.GetPart(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidPartNumber)

	low, err := svc.ListPartsAtOrBelowReorderPoint(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "P-1", low[0].PartNumber)
	assert.Equal(t, "P-3", low[1].PartNumber)

	byNumber, err := svc.GetParts(ctx, []string{"P-3", "P-1", "missing"})
	require.NoError(t, err)
	assert.Len(t, byNumber, 2)

	page, err := svc.ListParts(ctx, domain.ListPartsRequest{Pagination: pagination.Pagination{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Parts, 1)
	assert.Equal(t, "P-3", page.Parts[0].PartNumber)
}

func TestAggregateBom(t *testing.T) {
	got := domain.AggregateBom([]domain.ProductBomLine{
		{PartNumber: "B", QuantityNeeded: 1},
		{PartNumber: "A", QuantityNeeded: 2},
		{PartNumber: "B", QuantityNeeded: 3},
	})
	assert.Equal(t, []domain.PartUsage{
		{PartNumber: "A", QuantityNeeded: 2},
		{PartNumber: "B", QuantityNeeded: 4},
	}, got)
}
