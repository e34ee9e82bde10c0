/*
search.go adapts *Store to search.Index and importer.VectorStore.

Stage 1 (SearchFTS) queries the items_fts virtual table created in
sqlite.go's migration. Stage 2 (SearchVectors) and UpsertEmbedding read/write
item_embeddings, where the vector is stored as a JSON-encoded []float32 -
SQLite has no native vector column type, and JSON round-trips cleanly
through database/sql's TEXT affinity without a third-party vector extension
the retrieval pack never shows in use.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/search"
	"github.com/fiskpoint/posengine/store/dbtx"
)

type SearchRepo struct{ *Store }

func NewSearchRepo(s *Store) *SearchRepo { return &SearchRepo{s} }

func (r *SearchRepo) q(tx *dbtx.Handle) dbtx.Querier { return tx.Or(r.pool()) }

func (r *SearchRepo) SearchFTS(ctx context.Context, query string, limit int) ([]search.Candidate, error) {
	rows, err := r.pool().QueryContext(ctx,
		`SELECT items.id, items.display_name, items.price
		 FROM items_fts JOIN items ON items.id = items_fts.item_id
		 WHERE items_fts.name MATCH ? LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidateRows(rows)
}

func (r *SearchRepo) SearchVectors(ctx context.Context, vector []float32, limit int) ([]search.VectorCandidate, error) {
	rows, err := r.pool().QueryContext(ctx,
		`SELECT items.id, items.display_name, items.price, item_embeddings.vector
		 FROM item_embeddings JOIN items ON items.id = item_embeddings.item_id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []search.VectorCandidate
	for rows.Next() {
		var id int64
		var displayNameJSON, priceStr, vectorJSON string
		if err := rows.Scan(&id, &displayNameJSON, &priceStr, &vectorJSON); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
			return nil, err
		}
		out = append(out, search.VectorCandidate{
			Candidate: search.Candidate{ItemID: formatID(id), Name: displayNameOf(displayNameJSON), Price: priceStr},
			Vector:    vec,
		})
	}
	return out, rows.Err()
}

func (r *SearchRepo) AllCandidates(ctx context.Context) ([]search.Candidate, error) {
	rows, err := r.pool().QueryContext(ctx, `SELECT id, display_name, price FROM items`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidateRows(rows)
}

func (r *SearchRepo) UpsertEmbedding(ctx context.Context, tx *dbtx.Handle, itemID catalog.ItemID, vector []float32) error {
	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx,
		`INSERT INTO item_embeddings (item_id, vector) VALUES (?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET vector = excluded.vector`,
		itemID, string(vecJSON))
	return err
}

func scanCandidateRows(rows *sql.Rows) ([]search.Candidate, error) {
	var out []search.Candidate
	for rows.Next() {
		var id int64
		var displayNameJSON, priceStr string
		if err := rows.Scan(&id, &displayNameJSON, &priceStr); err != nil {
			return nil, err
		}
		out = append(out, search.Candidate{ItemID: formatID(id), Name: displayNameOf(displayNameJSON), Price: priceStr})
	}
	return out, rows.Err()
}

// displayNameOf extracts a single searchable name from a DisplayNames JSON
// blob, preferring "en" then falling back to whatever key comes first.
func displayNameOf(displayNameJSON string) string {
	var names map[string]string
	if err := json.Unmarshal([]byte(displayNameJSON), &names); err != nil {
		return ""
	}
	if en, ok := names["en"]; ok {
		return en
	}
	for _, v := range names {
		return v
	}
	return ""
}
