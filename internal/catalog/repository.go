// Package catalog looks up artwork prices for order placement.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/printhub/internal/database"
	"github.com/joao-fontenele/printhub/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Artworks returns the requested artworks keyed by id. Ids with no row are
// absent from the map.
func (r *Repository) Artworks(ctx context.Context, ids []string) (map[string]domain.Artwork, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, title, price
		FROM artworks
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query artworks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	artworks := make(map[string]domain.Artwork, len(ids))
	for rows.Next() {
		var artwork domain.Artwork
		if err := rows.Scan(&artwork.ID, &artwork.Title, &artwork.Price); err != nil {
			return nil, err
		}
		artworks[artwork.ID] = artwork
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return artworks, nil
}
