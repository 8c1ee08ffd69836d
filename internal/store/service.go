package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/index"
)

// Service couples the record store and the search index: every save hits
// the database first, then the index, so a failed index write never
// leaves a post visible in search but missing from the store.
type Service struct {
	posts  *PostStore
	index  *index.PostIndex
	logger *slog.Logger
}

// NewService wires a PostStore and a PostIndex together.
func NewService(posts *PostStore, idx *index.PostIndex, logger *slog.Logger) *Service {
	return &Service{posts: posts, index: idx, logger: logger}
}

// Save persists the post and updates the search index. A blank ID gets a
// freshly minted UUID; the saved post (with its id) is returned.
func (s *Service) Save(ctx context.Context, p Post) (Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	if err := s.posts.Upsert(ctx, p); err != nil {
		return Post{}, err
	}

	if err := s.index.Upsert(ctx, indexDoc(p)); err != nil {
		return Post{}, fmt.Errorf("post %s saved but not indexed: %w", p.ID, err)
	}

	s.logger.Info("post_saved",
		slog.String("id", p.ID),
		slog.String("title", p.Title))
	return p, nil
}

// Get loads a post by id.
func (s *Service) Get(ctx context.Context, id string) (Post, error) {
	return s.posts.Get(ctx, id)
}

// Search runs a ranked query against the index.
func (s *Service) Search(ctx context.Context, query, mode string, limit int) ([]index.Hit, error) {
	return s.index.Search(ctx, query, mode, limit)
}

// Reindex rebuilds the search index from the record store. Used after an
// index reset or corruption recovery.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	posts, err := s.posts.All(ctx)
	if err != nil {
		return 0, err
	}
	for i, p := range posts {
		if err := s.index.Upsert(ctx, indexDoc(p)); err != nil {
			return i, fmt.Errorf("reindex stopped at post %s: %w", p.ID, err)
		}
	}
	s.logger.Info("reindex_complete", slog.Int("posts", len(posts)))
	return len(posts), nil
}

func indexDoc(p Post) index.Document {
	return index.Document{
		ID:       p.ID,
		Title:    p.Title,
		Tags:     p.Tags,
		AltText:  p.AltText,
		ImageURL: p.ImageURL,
		Date:     p.Date,
	}
}
