package repository

import (
	"context"
	"database/sql"

	"github.com/channelport/channelport-api/internal/models"
)

type CatalogRepository interface {
	GetCatalog(ctx context.Context, tenantID, id string) (models.Catalog, error)
	ListCatalogs(ctx context.Context, tenantID string) ([]models.Catalog, error)
	CreateCatalog(ctx context.Context, catalog models.Catalog) (models.Catalog, error)
	// UpsertProduct inserts or updates by (catalog_id, sku). Returns true
	// when a new row was created.
	UpsertProduct(ctx context.Context, product models.Product) (models.Product, bool, error)
	// UpsertCategory inserts or updates by (catalog_id, slug).
	UpsertCategory(ctx context.Context, category models.Category) (models.Category, bool, error)
	GetCategoryBySlug(ctx context.Context, tenantID, catalogID, slug string) (models.Category, error)
	// UpdateStock adjusts stock for an existing product by SKU. A missing
	// SKU is reported as ErrNotFound so the import can count it skipped.
	UpdateStock(ctx context.Context, tenantID, catalogID, sku string, stock int64) error
}

type catalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetCatalog(ctx context.Context, tenantID, id string) (models.Catalog, error) {
	const query = `
		SELECT id, tenant_id, COALESCE(user_id::TEXT, '') AS user_id, name, created_at, updated_at
		FROM tenant.catalogs
		WHERE id = $1 AND tenant_id = $2
	`
	var c models.Catalog
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&c.ID, &c.TenantID, &c.UserID, &c.Name, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Catalog{}, ErrNotFound
	}
	return c, err
}

func (r *catalogRepository) ListCatalogs(ctx context.Context, tenantID string) ([]models.Catalog, error) {
	const query = `
		SELECT id, tenant_id, COALESCE(user_id::TEXT, '') AS user_id, name, created_at, updated_at
		FROM tenant.catalogs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var catalogs []models.Catalog
	for rows.Next() {
		var c models.Catalog
		if err := rows.Scan(&c.ID, &c.TenantID, &c.UserID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		catalogs = append(catalogs, c)
	}
	return catalogs, rows.Err()
}

func (r *catalogRepository) CreateCatalog(ctx context.Context, catalog models.Catalog) (models.Catalog, error) {
	const query = `
		INSERT INTO tenant.catalogs (tenant_id, user_id, name)
		VALUES ($1, NULLIF($2, '')::uuid, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, catalog.TenantID, catalog.UserID, catalog.Name).
		Scan(&catalog.ID, &catalog.CreatedAt, &catalog.UpdatedAt)
	if err != nil {
		return models.Catalog{}, err
	}
	return catalog, nil
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, product models.Product) (models.Product, bool, error) {
	const query = `
		INSERT INTO tenant.products (tenant_id, catalog_id, category_id, sku, name, description, price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (catalog_id, sku) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    price = EXCLUDED.price,
		    stock = EXCLUDED.stock,
		    is_active = EXCLUDED.is_active,
		    category_id = COALESCE(EXCLUDED.category_id, tenant.products.category_id),
		    updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		product.TenantID, product.CatalogID, product.CategoryID, product.SKU,
		product.Name, product.Description, product.Price, product.Stock, product.IsActive,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt, &inserted)
	if err != nil {
		return models.Product{}, false, err
	}
	return product, inserted, nil
}

func (r *catalogRepository) UpsertCategory(ctx context.Context, category models.Category) (models.Category, bool, error) {
	const query = `
		INSERT INTO tenant.categories (tenant_id, catalog_id, parent_id, slug, name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (catalog_id, slug) DO UPDATE
		SET name = EXCLUDED.name,
		    parent_id = COALESCE(EXCLUDED.parent_id, tenant.categories.parent_id),
		    updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		category.TenantID, category.CatalogID, category.ParentID, category.Slug, category.Name,
	).Scan(&category.ID, &category.CreatedAt, &category.UpdatedAt, &inserted)
	if err != nil {
		return models.Category{}, false, err
	}
	return category, inserted, nil
}

func (r *catalogRepository) GetCategoryBySlug(ctx context.Context, tenantID, catalogID, slug string) (models.Category, error) {
	const query = `
		SELECT id, tenant_id, catalog_id, parent_id, slug, name, created_at, updated_at
		FROM tenant.categories
		WHERE tenant_id = $1 AND catalog_id = $2 AND slug = $3
	`
	var c models.Category
	err := r.db.QueryRowContext(ctx, query, tenantID, catalogID, slug).Scan(
		&c.ID, &c.TenantID, &c.CatalogID, &c.ParentID, &c.Slug, &c.Name, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Category{}, ErrNotFound
	}
	return c, err
}

func (r *catalogRepository) UpdateStock(ctx context.Context, tenantID, catalogID, sku string, stock int64) error {
	const query = `
		UPDATE tenant.products
		SET stock = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND catalog_id = $3 AND sku = $4
	`
	res, err := r.db.ExecContext(ctx, query, stock, tenantID, catalogID, sku)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
