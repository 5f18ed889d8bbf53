package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/neighborwatch/internal/client/models"
	"github.com/dmitrijs2005/neighborwatch/internal/common"
	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

const recentPostsLimit = 10

// CommunityService backs the community board. Deleted posts and comments
// are never returned.
type CommunityService interface {
	Posts(ctx context.Context) ([]models.CommunityPost, error)
	Comments(ctx context.Context, postID string) ([]models.Comment, error)
	CreatePost(ctx context.Context, memberID, content string) (*models.CommunityPost, error)
	AddComment(ctx context.Context, postID, memberID, content string) (*models.Comment, error)
}

type communityService struct {
	tables Tables
	logger logging.Logger
	clock  clock
}

func NewCommunityService(t Tables, logger logging.Logger) CommunityService {
	return &communityService{tables: t, logger: logger.With("service", "community")}
}

// Posts returns the latest posts, newest first.
func (s *communityService) Posts(ctx context.Context) ([]models.CommunityPost, error) {
	var out []models.CommunityPost
	err := s.tables.From(tablePosts).
		Select(authorEmbed).
		Eq("is_deleted", false).
		Order("created_at", false).
		Limit(recentPostsLimit).
		Execute(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

// Comments returns a post's comments, oldest first.
func (s *communityService) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	var out []models.Comment
	err := s.tables.From(tableComments).
		Select(authorEmbed).
		Eq("post_id", postID).
		Eq("is_deleted", false).
		Order("created_at", true).
		Execute(ctx, &out)
	if err != nil {
		return nil, fmt.Errorf("list comments of %s: %w", postID, err)
	}
	return out, nil
}

func content(memberID, text string) (string, error) {
	if memberID == "" {
		return "", common.ErrWrongRole
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", common.ErrEmptyContent
	}
	return text, nil
}

func (s *communityService) CreatePost(ctx context.Context, memberID, text string) (*models.CommunityPost, error) {
	text, err := content(memberID, text)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	p, err := insertOne[models.CommunityPost](ctx, s.tables, tablePosts, map[string]any{
		"member_id":  memberID,
		"content":    text,
		"is_deleted": false,
		"created_at": s.clock.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return p, nil
}

func (s *communityService) AddComment(ctx context.Context, postID, memberID, text string) (*models.Comment, error) {
	text, err := content(memberID, text)
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	c, err := insertOne[models.Comment](ctx, s.tables, tableComments, map[string]any{
		"post_id":    postID,
		"member_id":  memberID,
		"content":    text,
		"is_deleted": false,
		"created_at": s.clock.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return c, nil
}
