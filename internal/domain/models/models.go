package models

import (
	"fmt"
	"strings"
	"time"

	errs "taskman/internal/domain/errors"
)

type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

type RoleType string

const (
	RoleAdmin RoleType = "ADMIN"
	RoleUser  RoleType = "USER"
)

// ParseStatus разбирает пользовательскую строку без учёта регистра.
// Единая точка разбора для фильтра и поиска.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(s)) {
	case StatusWaiting, StatusRunning, StatusFinished:
		return Status(strings.ToUpper(s)), nil
	}
	return "", fmt.Errorf("%w: %s", errs.ErrInvalidStatus, s)
}

func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToUpper(s)) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(strings.ToUpper(s)), nil
	}
	return "", fmt.Errorf("%w: %s", errs.ErrInvalidPriority, s)
}

func ParseRole(s string) (RoleType, error) {
	switch RoleType(strings.ToUpper(s)) {
	case RoleAdmin, RoleUser:
		return RoleType(strings.ToUpper(s)), nil
	}
	return "", fmt.Errorf("%w: %s", errs.ErrInvalidRole, s)
}

type User struct {
	ID       int64      `json:"id"`
	Username string     `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"-"`
	Roles    []RoleType `json:"roles"`
	Enabled  bool       `json:"enabled"`
}

func (u *User) HasRole(role RoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	AuthorID    int64     `json:"authorId"`
	AssigneeID  *int64    `json:"assigneeId"`
	CreatedAt   time.Time `json:"createdAt"`
	Comments    []Comment `json:"comments,omitempty"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Text      string    `json:"comment"`
	AuthorID  int64     `json:"authorId"`
	TaskID    int64     `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Principal — аутентифицированный субъект запроса. Передаётся явно,
// без глобального контекста безопасности.
type Principal struct {
	UserID int64
	Roles  []RoleType
}

func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// TaskFilter — типизированный фильтр задач. Номер и размер страницы
// обязательны, остальные поля необязательны.
type TaskFilter struct {
	PageSize    *int       `json:"pageSize" form:"pageSize"`
	PageNumber  *int       `json:"pageNumber" form:"pageNumber"`
	Title       *string    `json:"title" form:"title"`
	Description *string    `json:"description" form:"description"`
	Status      *Status    `json:"status" form:"status"`
	Priority    *Priority  `json:"priority" form:"priority"`
	AuthorID    *int64     `json:"authorId" form:"authorId"`
	AssigneeID  *int64     `json:"assigneeId" form:"assigneeId"`
	CreatedAt   *time.Time `json:"createdAt" form:"createdAt" time_format:"2006-01-02T15:04:05Z07:00"`
}

type Page struct {
	Number int
	Size   int
}

type TaskPage struct {
	Items      []Task `json:"items"`
	Total      int64  `json:"total"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

type UserRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"omitempty,min=8,max=100"`
	Roles    []string `json:"roles" validate:"omitempty,dive,oneof=ADMIN USER admin user"`
	Enabled  bool     `json:"enabled"`
}

type PasswordRequest struct {
	OldPassword        string `json:"oldPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required"`
}

type TaskRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	Status      string `json:"status" validate:"omitempty"`
	Priority    string `json:"priority" validate:"omitempty"`
	AuthorID    int64  `json:"authorId"`
	AssigneeID  *int64 `json:"assigneeId"`
}

type CommentRequest struct {
	Text   string `json:"comment" validate:"required,min=3,max=30"`
	TaskID int64  `json:"taskId" validate:"required"`
}
