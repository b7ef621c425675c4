package service

import (
	"context"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"
	"taskman/internal/query"

	log "github.com/sirupsen/logrus"
)

type TaskService struct {
	tasks TaskRepository
	users UserRepository
}

func NewTaskService(tasks TaskRepository, users UserRepository) *TaskService {
	if tasks == nil || users == nil {
		return nil
	}
	return &TaskService{tasks: tasks, users: users}
}

func (s *TaskService) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	return s.tasks.GetTaskByID(ctx, id)
}

func (s *TaskService) FindAll(ctx context.Context, page models.Page) (*models.TaskPage, error) {
	return s.tasks.FindTasks(ctx, query.Spec{}, page)
}

func (s *TaskService) Create(ctx context.Context, rq models.TaskRequest) (*models.Task, error) {
	task, err := s.convert(ctx, rq)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Update применяет разрешённые поля внутри одной транзакции хранилища.
// Автор и администратор меняют всё, исполнитель — только статус,
// остальные не меняют ничего: задача сохраняется без изменений.
func (s *TaskService) Update(ctx context.Context, principal models.Principal, id int64, rq models.TaskRequest) (*models.Task, error) {
	proposed, err := s.convert(ctx, rq)
	if err != nil {
		return nil, err
	}

	updated, err := s.tasks.UpdateTask(ctx, id, func(existing *models.Task) error {
		applyTaskUpdate(principal, existing, proposed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyTaskUpdate(principal models.Principal, existing, proposed *models.Task) {
	switch {
	case principal.IsAdmin() || principal.UserID == existing.AuthorID:
		existing.Title = proposed.Title
		existing.Description = proposed.Description
		existing.Priority = proposed.Priority
		existing.Status = proposed.Status
		existing.AuthorID = proposed.AuthorID
		existing.AssigneeID = proposed.AssigneeID
	case existing.AssigneeID != nil && principal.UserID == *existing.AssigneeID:
		existing.Status = proposed.Status
	}
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	if _, err := s.tasks.GetTaskByID(ctx, id); err != nil {
		return err
	}
	return s.tasks.DeleteTask(ctx, id)
}

// FilterBy — типизированный путь фильтрации. Номер и размер страницы
// обязательны и проверяются до обращения к хранилищу.
func (s *TaskService) FilterBy(ctx context.Context, filter models.TaskFilter) (*models.TaskPage, error) {
	if filter.PageNumber == nil || filter.PageSize == nil {
		return nil, errs.ErrPageRequired
	}
	if *filter.PageNumber < 0 || *filter.PageSize < 1 {
		return nil, errs.ErrBadRequest
	}

	spec := query.WithFilter(filter)
	page := models.Page{Number: *filter.PageNumber, Size: *filter.PageSize}
	return s.tasks.FindTasks(ctx, spec, page)
}

// FindByCriteria — динамический поиск. Ошибка разбора критериев
// прерывает операцию до выполнения запроса.
func (s *TaskService) FindByCriteria(ctx context.Context, criteria map[string]string, page models.Page) (*models.TaskPage, error) {
	spec, err := query.FromCriteria(criteria)
	if err != nil {
		log.Warnln("Некорректные критерии поиска:", err)
		return nil, err
	}
	return s.tasks.FindTasks(ctx, spec, page)
}

func (s *TaskService) convert(ctx context.Context, rq models.TaskRequest) (*models.Task, error) {
	task := &models.Task{
		Title:       rq.Title,
		Description: rq.Description,
		Status:      models.StatusWaiting,
		Priority:    models.PriorityMedium,
	}

	if rq.Status != "" {
		status, err := models.ParseStatus(rq.Status)
		if err != nil {
			return nil, err
		}
		task.Status = status
	}
	if rq.Priority != "" {
		priority, err := models.ParsePriority(rq.Priority)
		if err != nil {
			return nil, err
		}
		task.Priority = priority
	}

	if _, err := s.users.GetUserByID(ctx, rq.AuthorID); err != nil {
		return nil, err
	}
	task.AuthorID = rq.AuthorID

	if rq.AssigneeID != nil {
		if _, err := s.users.GetUserByID(ctx, *rq.AssigneeID); err != nil {
			return nil, err
		}
		task.AssigneeID = rq.AssigneeID
	}

	return task, nil
}
