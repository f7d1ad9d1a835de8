package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
)

// ArchiveStorage is the object storage used for article exports
type ArchiveStorage interface {
	PutArticle(ctx context.Context, articleID string, markdown []byte) error
	ArticleDownloadURL(ctx context.Context, articleID string) (string, error)
	HasArticle(ctx context.Context, articleID string) (bool, error)
	DeleteArticle(ctx context.Context, articleID string) error
}

// ArticleArchiver mirrors published articles to object storage as markdown
type ArticleArchiver struct {
	storage  ArchiveStorage
	articles ArticleRepository
}

// NewArticleArchiver creates an ArticleArchiver
func NewArticleArchiver(storage ArchiveStorage, articles ArticleRepository) *ArticleArchiver {
	return &ArticleArchiver{storage: storage, articles: articles}
}

// Archive writes the article's current markdown
func (a *ArticleArchiver) Archive(ctx context.Context, article *domain.KnowledgeArticle) error {
	if err := a.storage.PutArticle(ctx, article.ID, RenderMarkdown(article)); err != nil {
		return fmt.Errorf("archive article %s: %w", article.ID, err)
	}
	return nil
}

// ExportURL returns a download URL for an article, archiving it first if it
// has not been archived yet
func (a *ArticleArchiver) ExportURL(ctx context.Context, articleID string) (string, error) {
	article, err := a.articles.GetByID(ctx, articleID)
	if err != nil {
		return "", err
	}

	exists, err := a.storage.HasArticle(ctx, article.ID)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := a.Archive(ctx, article); err != nil {
			return "", err
		}
	}

	return a.storage.ArticleDownloadURL(ctx, article.ID)
}

// Remove deletes an article's export. Removing a missing export succeeds.
func (a *ArticleArchiver) Remove(ctx context.Context, articleID string) error {
	if err := a.storage.DeleteArticle(ctx, articleID); err != nil {
		return fmt.Errorf("remove archived article %s: %w", articleID, err)
	}
	return nil
}

// RenderMarkdown renders an article as a markdown document with front matter
func RenderMarkdown(a *domain.KnowledgeArticle) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", a.ID)
	fmt.Fprintf(&b, "title: %q\n", a.Title)
	fmt.Fprintf(&b, "category: %s\n", a.Category)
	if len(a.Tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(a.Tags, ", "))
	}
	if a.Difficulty != "" {
		fmt.Fprintf(&b, "difficulty: %s\n", a.Difficulty)
	}
	if a.ReadTimeMinutes > 0 {
		fmt.Fprintf(&b, "read_time_minutes: %d\n", a.ReadTimeMinutes)
	}
	fmt.Fprintf(&b, "published: %t\n", a.IsPublished)
	fmt.Fprintf(&b, "effectiveness: %.2f\n", a.EffectivenessScore)
	fmt.Fprintf(&b, "source_tickets: [%s]\n", strings.Join(a.SourceTicketIDs, ", "))
	fmt.Fprintf(&b, "updated_at: %s\n", a.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", a.Title)
	if a.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", a.Summary)
	}
	b.WriteString(strings.TrimSpace(a.Content))
	b.WriteString("\n")
	return []byte(b.String())
}
