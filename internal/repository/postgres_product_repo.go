package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/devicehub/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品カタログリポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

// List は全商品を登録順で返す。
func (r *PostgresProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, price_cents, image, category, created_at
		 FROM products ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, wrapError("failed to list products", err)
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		p := &model.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Image, &p.Category, &p.CreatedAt); err != nil {
			return nil, wrapError("failed to scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("failed to iterate products", err)
	}
	return products, nil
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
