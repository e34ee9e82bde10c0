/*
service.go - importFromOopMdf (spec §4.8): atomic catalog replace plus
per-item embedding reuse/creation.
*/
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/catalog"
	"github.com/fiskpoint/posengine/ferrors"
	"github.com/fiskpoint/posengine/store/dbtx"
)

// VectorStore persists the item-identifier-keyed embedding side table.
type VectorStore interface {
	UpsertEmbedding(ctx context.Context, tx *dbtx.Handle, itemID catalog.ItemID, vector []float32) error
}

type Service struct {
	Catalog   catalog.Repository
	Vectors   VectorStore
	Embedder  EmbeddingProvider
	Log       zerolog.Logger
}

func NewService(cat catalog.Repository, vectors VectorStore, embedder EmbeddingProvider, log zerolog.Logger) *Service {
	return &Service{Catalog: cat, Vectors: vectors, Embedder: embedder, Log: log}
}

// ImportFromOopMdf implements spec §4.8's four steps.
func (s *Service) ImportFromOopMdf(ctx context.Context, companies []SourceCompany) (*Result, error) {
	result := &Result{}

	err := s.Catalog.WithTx(ctx, func(h *dbtx.Handle) error {
		// Step 1: atomic replace in referential order.
		if err := s.Catalog.DeleteCatalogTree(ctx, h); err != nil {
			return err
		}

		// Step 2: insert company -> branches -> devices -> categories ->
		// items, remapping source identifiers to storage identifiers.
		for _, sc := range companies {
			now := time.Now().UTC()
			company, err := s.Catalog.CreateCompany(ctx, h, catalog.Company{
				Name:        sc.Name,
				AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
			})
			if err != nil {
				return fmt.Errorf("company %s: %w", sc.SourceID, err)
			}
			result.CompaniesImported++

			for _, sb := range sc.Branches {
				branch, err := s.Catalog.CreateBranch(ctx, h, catalog.Branch{
					CompanyID:   company.ID,
					Name:        sb.Name,
					AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
				})
				if err != nil {
					return fmt.Errorf("branch %s: %w", sb.SourceID, err)
				}

				for _, sd := range sb.POSDevices {
					device, err := s.Catalog.CreatePOSDevice(ctx, h, catalog.POSDevice{
						BranchID:    branch.ID,
						Name:        sd.Name,
						AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
					})
					if err != nil {
						return fmt.Errorf("pos_device %s: %w", sd.SourceID, err)
					}

					for _, scat := range sd.Categories {
						category, err := s.Catalog.CreateCategory(ctx, h, catalog.Category{
							POSDeviceID:  device.ID,
							DisplayName:  catalog.DisplayNames(scat.DisplayName),
							CategoryType: catalog.CategoryType(scat.CategoryType),
							AuditRecord:  catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
						})
						if err != nil {
							return fmt.Errorf("category %s: %w", scat.SourceID, err)
						}

						for _, sit := range scat.Items {
							item, err := s.Catalog.CreateItem(ctx, h, catalog.Item{
								POSDeviceID: device.ID,
								CategoryID:  category.ID,
								DisplayName: catalog.DisplayNames(sit.DisplayName),
								PriceCents:  sit.PriceCents,
								Description: sit.Description,
								AuditRecord: catalog.AuditRecord{CreatedAt: now, UpdatedAt: now},
							})
							if err != nil {
								result.Errors = append(result.Errors, ItemError{ItemSourceID: sit.SourceID, Err: err})
								continue
							}
							result.ItemsImported++

							// Step 3: embedding reuse-or-create, never
							// aborting the import on a per-item failure
							// (step 4).
							if err := s.resolveEmbedding(ctx, h, item, scat.DisplayName["en"], sit, result); err != nil {
								result.Errors = append(result.Errors, ItemError{ItemSourceID: sit.SourceID, Err: err})
							}
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveEmbedding implements spec §4.8 step 3: compute the semantic
// string, reuse the existing vector if its stored hash matches, otherwise
// request a new embedding.
func (s *Service) resolveEmbedding(ctx context.Context, h *dbtx.Handle, item catalog.Item, categoryDisplayName string, sit SourceItem, result *Result) error {
	semantic := fmt.Sprintf("Category: %s. Product: %s. Description: %s", categoryDisplayName, sit.DisplayName["en"], sit.Description)
	hash := sha256Hex(semantic)

	if sit.EmbeddingHash != "" && sit.EmbeddingHash == hash {
		result.EmbeddingsReused++
		return nil
	}

	vec, err := s.embedWithRetry(ctx, semantic)
	if err != nil {
		return err
	}
	if err := s.Vectors.UpsertEmbedding(ctx, h, item.ID, vec); err != nil {
		return err
	}
	if err := s.Catalog.UpdateItemEmbeddingHash(ctx, h, item.ID, hash); err != nil {
		return err
	}
	result.EmbeddingsCreated++
	return nil
}

// embedWithRetry wraps the embedding provider with the same backoff +
// ExternalTimeout policy as the fiscal signer (spec §4.8).
func (s *Service) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	b := backoff.WithMaxElapsedTime(backoff.NewExponentialBackOff(), 5*time.Second)
	var vec []float32
	operation := func() error {
		v, err := s.Embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, ferrors.New(ferrors.ExternalTimeout, "embedding provider unavailable: %v", err)
	}
	return vec, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
