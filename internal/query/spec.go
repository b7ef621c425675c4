package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"
)

type Operator string

const (
	Equals      Operator = "eq"
	Contains    Operator = "contains"
	LessOrEqual Operator = "lte"
)

// Имена полей нейтральны к хранилищу, адаптеры переводят их
// в колонки SQL или в сравнение полей структуры.
const (
	FieldID               = "id"
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldStatus           = "status"
	FieldPriority         = "priority"
	FieldAuthorID         = "author_id"
	FieldAssigneeID       = "assignee_id"
	FieldCreatedAt        = "created_at"
	FieldAuthorUsername   = "author_username"
	FieldAssigneeUsername = "assignee_username"
)

type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Spec — набор условий, объединяемых по AND. Пустой Spec не
// ограничивает выборку.
type Spec []Condition

func (s Spec) And(c *Condition) Spec {
	if c == nil {
		return s
	}
	return append(s, *c)
}

func ByTitle(title *string) *Condition {
	if title == nil {
		return nil
	}
	return &Condition{Field: FieldTitle, Op: Equals, Value: *title}
}

func ByDescription(description *string) *Condition {
	if description == nil {
		return nil
	}
	return &Condition{Field: FieldDescription, Op: Equals, Value: *description}
}

func ByStatus(status *models.Status) *Condition {
	if status == nil {
		return nil
	}
	return &Condition{Field: FieldStatus, Op: Equals, Value: *status}
}

func ByPriority(priority *models.Priority) *Condition {
	if priority == nil {
		return nil
	}
	return &Condition{Field: FieldPriority, Op: Equals, Value: *priority}
}

func ByAuthorID(id *int64) *Condition {
	if id == nil {
		return nil
	}
	return &Condition{Field: FieldAuthorID, Op: Equals, Value: *id}
}

func ByAssigneeID(id *int64) *Condition {
	if id == nil {
		return nil
	}
	return &Condition{Field: FieldAssigneeID, Op: Equals, Value: *id}
}

func ByCreatedBefore(t *time.Time) *Condition {
	if t == nil {
		return nil
	}
	return &Condition{Field: FieldCreatedAt, Op: LessOrEqual, Value: *t}
}

// WithFilter собирает условия типизированного фильтра. Незаполненные
// поля не ограничивают выборку.
func WithFilter(f models.TaskFilter) Spec {
	return Spec{}.
		And(ByTitle(f.Title)).
		And(ByDescription(f.Description)).
		And(ByStatus(f.Status)).
		And(ByPriority(f.Priority)).
		And(ByAuthorID(f.AuthorID)).
		And(ByAssigneeID(f.AssigneeID)).
		And(ByCreatedBefore(f.CreatedAt))
}

// FromCriteria разбирает нетипизированные критерии поиска. Пустые
// значения и неизвестные ключи пропускаются; нераспознанное значение
// перечисления прерывает разбор целиком.
func FromCriteria(criteria map[string]string) (Spec, error) {
	spec := Spec{}

	if v := strings.TrimSpace(criteria["id"]); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: id %q", errs.ErrConversionFailed, v)
		}
		spec = append(spec, Condition{Field: FieldID, Op: Equals, Value: id})
	}
	if v := criteria["title"]; strings.TrimSpace(v) != "" {
		spec = append(spec, Condition{Field: FieldTitle, Op: Contains, Value: v})
	}
	if v := criteria["description"]; strings.TrimSpace(v) != "" {
		spec = append(spec, Condition{Field: FieldDescription, Op: Contains, Value: v})
	}
	if v := strings.TrimSpace(criteria["status"]); v != "" {
		status, err := models.ParseStatus(v)
		if err != nil {
			return nil, err
		}
		spec = append(spec, Condition{Field: FieldStatus, Op: Equals, Value: status})
	}
	if v := strings.TrimSpace(criteria["priority"]); v != "" {
		priority, err := models.ParsePriority(v)
		if err != nil {
			return nil, err
		}
		spec = append(spec, Condition{Field: FieldPriority, Op: Equals, Value: priority})
	}
	if v := strings.TrimSpace(criteria["authorUsername"]); v != "" {
		spec = append(spec, Condition{Field: FieldAuthorUsername, Op: Equals, Value: v})
	}
	if v := strings.TrimSpace(criteria["assigneeUsername"]); v != "" {
		spec = append(spec, Condition{Field: FieldAssigneeUsername, Op: Equals, Value: v})
	}

	return spec, nil
}
