package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"
	"taskman/internal/query"
)

// Storage — хранилище в памяти. Используется как запасной вариант при
// недоступной БД и в тестах. Условия query.Spec вычисляются напрямую
// над структурами.
type Storage struct {
	mu       sync.Mutex
	users    map[int64]models.User
	tasks    map[int64]models.Task
	comments map[int64]models.Comment
	nextID   int64
}

func NewStorage() *Storage {
	return &Storage{
		users:    make(map[int64]models.User),
		tasks:    make(map[int64]models.Task),
		comments: make(map[int64]models.Comment),
	}
}

func (s *Storage) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return errs.ErrUsernameTaken
		}
		if existing.Email == user.Email {
			return errs.ErrEmailTaken
		}
	}
	user.ID = s.newID()
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errs.ErrUserNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, errs.ErrUserNotFound
}

func (s *Storage) GetUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Storage) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// UpdateUser выполняет чтение-изменение-запись под общей блокировкой,
// поэтому конкурирующие обновления сериализуются.
func (s *Storage) UpdateUser(_ context.Context, id int64, mutate func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[id]
	if !exists {
		return nil, errs.ErrUserNotFound
	}
	if err := mutate(&user); err != nil {
		return nil, err
	}
	user.ID = id
	s.users[id] = user
	return &user, nil
}

// DeleteUser каскадно удаляет авторские задачи с их комментариями и
// комментарии пользователя; у назначенных задач сбрасывается исполнитель.
func (s *Storage) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[id]; !exists {
		return errs.ErrUserNotFound
	}
	for taskID, task := range s.tasks {
		if task.AuthorID == id {
			s.deleteTaskLocked(taskID)
			continue
		}
		if task.AssigneeID != nil && *task.AssigneeID == id {
			task.AssigneeID = nil
			s.tasks[taskID] = task
		}
	}
	for commentID, comment := range s.comments {
		if comment.AuthorID == id {
			delete(s.comments, commentID)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *Storage) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = s.newID()
	task.CreatedAt = time.Now().UTC()
	stored := *task
	stored.Comments = nil
	s.tasks[task.ID] = stored
	return nil
}

func (s *Storage) GetTaskByID(_ context.Context, id int64) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, errs.ErrTaskNotFound
	}
	task.Comments = s.taskCommentsLocked(id)
	return &task, nil
}

func (s *Storage) FindTasks(_ context.Context, spec query.Spec, page models.Page) (*models.TaskPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]models.Task, 0)
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		task := s.tasks[id]
		ok, err := s.matchLocked(&task, spec)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, task)
		}
	}

	total := int64(len(matched))
	start := page.Number * page.Size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	items := matched[start:end]
	for i := range items {
		items[i].Comments = s.taskCommentsLocked(items[i].ID)
	}

	return &models.TaskPage{
		Items:      items,
		Total:      total,
		PageNumber: page.Number,
		PageSize:   page.Size,
	}, nil
}

func (s *Storage) matchLocked(task *models.Task, spec query.Spec) (bool, error) {
	for _, cond := range spec {
		ok, err := s.matchConditionLocked(task, cond)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Storage) matchConditionLocked(task *models.Task, cond query.Condition) (bool, error) {
	switch cond.Field {
	case query.FieldID:
		return task.ID == cond.Value.(int64), nil
	case query.FieldTitle:
		return matchString(task.Title, cond)
	case query.FieldDescription:
		return matchString(task.Description, cond)
	case query.FieldStatus:
		return task.Status == cond.Value.(models.Status), nil
	case query.FieldPriority:
		return task.Priority == cond.Value.(models.Priority), nil
	case query.FieldAuthorID:
		return task.AuthorID == cond.Value.(int64), nil
	case query.FieldAssigneeID:
		return task.AssigneeID != nil && *task.AssigneeID == cond.Value.(int64), nil
	case query.FieldCreatedAt:
		return !task.CreatedAt.After(cond.Value.(time.Time)), nil
	case query.FieldAuthorUsername:
		author, exists := s.users[task.AuthorID]
		return exists && author.Username == cond.Value.(string), nil
	case query.FieldAssigneeUsername:
		if task.AssigneeID == nil {
			return false, nil
		}
		assignee, exists := s.users[*task.AssigneeID]
		return exists && assignee.Username == cond.Value.(string), nil
	}
	return false, errs.ErrUnknownField
}

// Сопоставление Contains регистрозависимое, как LIKE '%v%' в БД.
func matchString(value string, cond query.Condition) (bool, error) {
	switch cond.Op {
	case query.Equals:
		return value == cond.Value.(string), nil
	case query.Contains:
		return strings.Contains(value, cond.Value.(string)), nil
	}
	return false, errs.ErrUnknownField
}

// UpdateTask — атомарное чтение-изменение-запись. CreatedAt никогда
// не переписывается.
func (s *Storage) UpdateTask(_ context.Context, id int64, mutate func(*models.Task) error) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, errs.ErrTaskNotFound
	}
	createdAt := task.CreatedAt
	if err := mutate(&task); err != nil {
		return nil, err
	}
	task.ID = id
	task.CreatedAt = createdAt
	task.Comments = nil
	s.tasks[id] = task
	task.Comments = s.taskCommentsLocked(id)
	return &task, nil
}

func (s *Storage) DeleteTask(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; !exists {
		return errs.ErrTaskNotFound
	}
	s.deleteTaskLocked(id)
	return nil
}

func (s *Storage) deleteTaskLocked(id int64) {
	for commentID, comment := range s.comments {
		if comment.TaskID == id {
			delete(s.comments, commentID)
		}
	}
	delete(s.tasks, id)
}

func (s *Storage) taskCommentsLocked(taskID int64) []models.Comment {
	var comments []models.Comment
	for _, comment := range s.comments {
		if comment.TaskID == taskID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return comments
}

func (s *Storage) CreateComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[comment.TaskID]; !exists {
		return errs.ErrTaskNotFound
	}
	comment.ID = s.newID()
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.ID] = *comment
	return nil
}

func (s *Storage) GetCommentByID(_ context.Context, id int64) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, exists := s.comments[id]
	if !exists {
		return nil, errs.ErrCommentNotFound
	}
	return &comment, nil
}

func (s *Storage) GetComments(_ context.Context) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments := make([]models.Comment, 0, len(s.comments))
	for _, comment := range s.comments {
		comments = append(comments, comment)
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return comments, nil
}

func (s *Storage) UpdateComment(_ context.Context, id int64, mutate func(*models.Comment) error) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, exists := s.comments[id]
	if !exists {
		return nil, errs.ErrCommentNotFound
	}
	createdAt := comment.CreatedAt
	if err := mutate(&comment); err != nil {
		return nil, err
	}
	comment.ID = id
	comment.CreatedAt = createdAt
	s.comments[id] = comment
	return &comment, nil
}

func (s *Storage) DeleteComment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.comments[id]; !exists {
		return errs.ErrCommentNotFound
	}
	delete(s.comments, id)
	return nil
}
