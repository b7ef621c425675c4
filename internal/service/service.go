package service

import (
	"context"

	"taskman/internal/domain/models"
	"taskman/internal/query"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateUser(ctx context.Context, id int64, mutate func(*models.User) error) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id int64) (*models.Task, error)
	FindTasks(ctx context.Context, spec query.Spec, page models.Page) (*models.TaskPage, error)
	UpdateTask(ctx context.Context, id int64, mutate func(*models.Task) error) (*models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id int64) (*models.Comment, error)
	GetComments(ctx context.Context) ([]models.Comment, error)
	UpdateComment(ctx context.Context, id int64, mutate func(*models.Comment) error) (*models.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}

type Whitelist interface {
	Set(ctx context.Context, userID int64, token string) error
	Delete(ctx context.Context, userID int64) error
	IsTokenCurrent(ctx context.Context, userID int64, token string) (bool, error)
}

type TokenProvider interface {
	CreateToken(user *models.User) (string, error)
}
