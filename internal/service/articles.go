package service

import (
	"context"
	"log"

	"github.com/cloo-solutions/helpdesk-learning/internal/telemetry"
)

// ArticleService manages the lifecycle of stored articles outside the
// learning pipeline
type ArticleService struct {
	tx       TxRunner
	archiver *ArticleArchiver
}

// NewArticleService creates an ArticleService. archiver may be nil when no
// archive storage is configured.
func NewArticleService(tx TxRunner, archiver *ArticleArchiver) *ArticleService {
	return &ArticleService{tx: tx, archiver: archiver}
}

// Delete removes an article together with its embedding, then its archived
// export. The database is authoritative: a failed export removal is reported
// but does not undo the delete.
func (s *ArticleService) Delete(ctx context.Context, articleID string) error {
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Articles().Delete(ctx, articleID); err != nil {
			return err
		}
		return repos.ArticleIndex().Delete(ctx, articleID)
	})
	if err != nil {
		return err
	}

	if s.archiver != nil {
		if err := s.archiver.Remove(ctx, articleID); err != nil {
			log.Printf("articles: %v", err)
			telemetry.CaptureError(ctx, err)
		}
	}
	log.Printf("articles: deleted article %s", articleID)
	return nil
}
