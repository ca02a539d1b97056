package cache

import (
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	catalogdomain "github.com/smallbiznis/mrpledger/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultBomTTL     = 10 * time.Minute
	defaultProductTTL = 10 * time.Minute
)

// CatalogCache stores hot-path catalog lookups. Stock figures are never cached.
type CatalogCache interface {
	GetBom(productID string) ([]catalogdomain.ProductBomLine, bool)
	SetBom(productID string, lines []catalogdomain.ProductBomLine)
	GetProduct(productID string) (catalogdomain.Product, bool)
	SetProduct(productID string, product catalogdomain.Product)
	Invalidate(productID string)
}

type catalogCache struct {
	boms       Cache[string, []catalogdomain.ProductBomLine]
	products   Cache[string, catalogdomain.Product]
	bomTTL     time.Duration
	productTTL time.Duration
}

// NewCatalogCache returns an in-memory catalog cache.
func NewCatalogCache() CatalogCache {
	return &catalogCache{
		boms:       NewTTLCache[string, []catalogdomain.ProductBomLine](),
		products:   NewTTLCache[string, catalogdomain.Product](),
		bomTTL:     defaultBomTTL,
		productTTL: defaultProductTTL,
	}
}

// NewRedisCatalogCache shares catalog lookups across replicas through Redis.
func NewRedisCatalogCache(client *redis.Client, log *zap.Logger) CatalogCache {
	return &catalogCache{
		boms:       NewRedisCache[[]catalogdomain.ProductBomLine](client, "mrpledger:bom", log),
		products:   NewRedisCache[catalogdomain.Product](client, "mrpledger:product", log),
		bomTTL:     defaultBomTTL,
		productTTL: defaultProductTTL,
	}
}

type CatalogCacheParams struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

// ProvideCatalogCache picks the Redis-backed cache when a client is configured.
func ProvideCatalogCache(p CatalogCacheParams) CatalogCache {
	if p.Redis != nil {
		return NewRedisCatalogCache(p.Redis, p.Log.Named("cache.catalog"))
	}
	return NewCatalogCache()
}

func (c *catalogCache) GetBom(productID string) ([]catalogdomain.ProductBomLine, bool) {
	return c.boms.Get(cacheKey(productID))
}

func (c *catalogCache) SetBom(productID string, lines []catalogdomain.ProductBomLine) {
	if len(lines) == 0 {
		return
	}
	c.boms.Set(cacheKey(productID), lines, c.bomTTL)
}

func (c *catalogCache) GetProduct(productID string) (catalogdomain.Product, bool) {
	return c.products.Get(cacheKey(productID))
}

func (c *catalogCache) SetProduct(productID string, product catalogdomain.Product) {
	if product.ID == 0 {
		return
	}
	c.products.Set(cacheKey(productID), product, c.productTTL)
}

func (c *catalogCache) Invalidate(productID string) {
	key := cacheKey(productID)
	c.boms.Delete(key)
	c.products.Delete(key)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
