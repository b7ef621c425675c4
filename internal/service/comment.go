package service

import (
	"context"

	"taskman/internal/domain/models"
)

type CommentService struct {
	comments CommentRepository
}

func NewCommentService(comments CommentRepository) *CommentService {
	if comments == nil {
		return nil
	}
	return &CommentService{comments: comments}
}

func (s *CommentService) FindByID(ctx context.Context, id int64) (*models.Comment, error) {
	return s.comments.GetCommentByID(ctx, id)
}

func (s *CommentService) FindAll(ctx context.Context) ([]models.Comment, error) {
	return s.comments.GetComments(ctx)
}

// Автором комментария всегда становится текущий субъект запроса.
func (s *CommentService) Create(ctx context.Context, principal models.Principal, rq models.CommentRequest) (*models.Comment, error) {
	comment := &models.Comment{
		Text:     rq.Text,
		AuthorID: principal.UserID,
		TaskID:   rq.TaskID,
	}
	if err := s.comments.CreateComment(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) Update(ctx context.Context, id int64, rq models.CommentRequest) (*models.Comment, error) {
	return s.comments.UpdateComment(ctx, id, func(existing *models.Comment) error {
		existing.Text = rq.Text
		return nil
	})
}

func (s *CommentService) Delete(ctx context.Context, id int64) error {
	if _, err := s.comments.GetCommentByID(ctx, id); err != nil {
		return err
	}
	return s.comments.DeleteComment(ctx, id)
}
