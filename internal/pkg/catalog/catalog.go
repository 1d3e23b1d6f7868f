package catalog

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/liquidsnips/liquidsnips/app/models"
	"github.com/liquidsnips/liquidsnips/internal/pkg/cache"
)

const (
	publishedIDsCacheKey = "catalog:published_snippet_ids"
	publishedIDsCacheTTL = 5 * time.Minute
)

// Service is the read-only snippet catalog. The catalog is maintained by
// seeding/admin tooling; this backend only reads it, so the published-id
// list is cached with a short TTL.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListPublished returns all published snippets without their code bodies.
func (s *Service) ListPublished(ctx context.Context) ([]models.Snippet, error) {
	var snippets []models.Snippet
	err := s.db.WithContext(ctx).
		Omit("code").
		Where("is_published = ?", true).
		Order("category, title").
		Find(&snippets).Error
	return snippets, err
}

// ListPublishedByCategory filters the published catalog by category.
func (s *Service) ListPublishedByCategory(ctx context.Context, category string) ([]models.Snippet, error) {
	var snippets []models.Snippet
	err := s.db.WithContext(ctx).
		Omit("code").
		Where("is_published = ? AND category = ?", true, category).
		Order("title").
		Find(&snippets).Error
	return snippets, err
}

// Get returns one snippet including its code body.
func (s *Service) Get(ctx context.Context, id string) (*models.Snippet, error) {
	var snippet models.Snippet
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&snippet).Error; err != nil {
		return nil, err
	}
	return &snippet, nil
}

// PublishedSnippetIDs enumerates the ids of all published snippets. This is
// the hot path of subscription activation, so results are cached briefly; a
// cache failure falls through to the database.
func (s *Service) PublishedSnippetIDs(ctx context.Context) ([]string, error) {
	if cached, err := cache.Get(publishedIDsCacheKey); err == nil && cached != "" {
		var ids []string
		if err := json.Unmarshal([]byte(cached), &ids); err == nil {
			return ids, nil
		}
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Snippet{}).
		Where("is_published = ?", true).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(ids); err == nil {
		if err := cache.Set(publishedIDsCacheKey, string(encoded), publishedIDsCacheTTL); err != nil {
			log.Printf("failed to cache published snippet ids: %v", err)
		}
	}
	return ids, nil
}

// InvalidatePublished drops the cached published-id list. Seeding tooling
// calls this after changing the catalog.
func (s *Service) InvalidatePublished() {
	if err := cache.Delete(publishedIDsCacheKey); err != nil {
		log.Printf("failed to invalidate published snippet cache: %v", err)
	}
}
