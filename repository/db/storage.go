package db

import (
	"context"
	"errors"
	"strings"
	"time"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"
	"taskman/internal/query"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 15 * time.Second

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Колонки для нейтральных полей фильтра. Имена пользователей берутся
// из джойнов автора и исполнителя.
var taskColumns = map[string]string{
	query.FieldID:               "t.id",
	query.FieldTitle:            "t.title",
	query.FieldDescription:      "t.description",
	query.FieldStatus:           "t.status",
	query.FieldPriority:         "t.priority",
	query.FieldAuthorID:         "t.author_id",
	query.FieldAssigneeID:       "t.assignee_id",
	query.FieldCreatedAt:        "t.created_at",
	query.FieldAuthorUsername:   "ua.username",
	query.FieldAssigneeUsername: "uas.username",
}

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(connStr string) (*Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Errorln("Не удалось создать пул соединений с базой данных:", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		log.Errorln("Не удалось подключиться к базе данных:", err)
		pool.Close()
		return nil, err
	}
	log.Infoln("Соединение с базой данных установлено успешно")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password, roles, enabled) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		user.Username, user.Email, user.Password, rolesToStrings(user.Roles), user.Enabled)
	if err := row.Scan(&user.ID); err != nil {
		log.Errorln("Не удалось создать пользователя:", err)
		return mapUniqueViolation(err)
	}
	log.Infoln("Пользователь успешно создан:", user.ID)
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password, roles, enabled FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		log.Errorln("Ошибка при получении пользователя:", err)
		return nil, err
	}
	return user, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password, roles, enabled FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		log.Errorln("Ошибка при получении пользователя:", err)
		return nil, err
	}
	return user, nil
}

func (s *Storage) GetUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, email, password, roles, enabled FROM users ORDER BY id`)
	if err != nil {
		log.Errorln("Не удалось получить пользователей:", err)
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Storage) UsernameExists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

func (s *Storage) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

// UpdateUser читает строку под блокировкой, применяет mutate и пишет
// результат в той же транзакции.
func (s *Storage) UpdateUser(ctx context.Context, id int64, mutate func(*models.User) error) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, username, email, password, roles, enabled FROM users WHERE id = $1 FOR UPDATE`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}

	if err := mutate(user); err != nil {
		return nil, err
	}
	user.ID = id

	_, err = tx.Exec(ctx,
		`UPDATE users SET username = $1, email = $2, password = $3, roles = $4, enabled = $5 WHERE id = $6`,
		user.Username, user.Email, user.Password, rolesToStrings(user.Roles), user.Enabled, id)
	if err != nil {
		log.Errorln("Не удалось обновить пользователя:", err)
		return nil, mapUniqueViolation(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	log.Infoln("Пользователь успешно обновлен:", id)
	return user, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		log.Errorln("Не удалось удалить пользователя:", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrUserNotFound
	}
	log.Infoln("Пользователь успешно удален:", id)
	return nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (title, description, status, priority, author_id, assignee_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		task.Title, task.Description, task.Status, task.Priority, task.AuthorID, task.AssigneeID)
	if err := row.Scan(&task.ID, &task.CreatedAt); err != nil {
		log.Errorln("Не удалось создать задачу:", err)
		return err
	}
	log.Infoln("Задача успешно создана:", task.ID)
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id int64) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, description, status, priority, author_id, assignee_id, created_at
		 FROM tasks WHERE id = $1`, id)
	task := &models.Task{}
	err := row.Scan(&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.AuthorID, &task.AssigneeID, &task.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrTaskNotFound
		}
		log.Errorln("Ошибка при получении задачи:", err)
		return nil, err
	}
	task.Comments, err = s.taskComments(ctx, id)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindTasks переводит нейтральный Spec в SQL через squirrel и считает
// общее число подходящих строк тем же набором условий.
func (s *Storage) FindTasks(ctx context.Context, spec query.Spec, page models.Page) (*models.TaskPage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := make([]sq.Sqlizer, 0, len(spec))
	for _, cond := range spec {
		pred, err := toPredicate(cond)
		if err != nil {
			return nil, err
		}
		where = append(where, pred)
	}

	countQuery := psql.Select("COUNT(*)").
		From("tasks t").
		LeftJoin("users ua ON ua.id = t.author_id").
		LeftJoin("users uas ON uas.id = t.assignee_id")
	selectQuery := psql.Select("t.id", "t.title", "t.description", "t.status", "t.priority",
		"t.author_id", "t.assignee_id", "t.created_at").
		From("tasks t").
		LeftJoin("users ua ON ua.id = t.author_id").
		LeftJoin("users uas ON uas.id = t.assignee_id")
	for _, pred := range where {
		countQuery = countQuery.Where(pred)
		selectQuery = selectQuery.Where(pred)
	}

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, err
	}
	var total int64
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		log.Errorln("Не удалось посчитать задачи:", err)
		return nil, err
	}

	selectSQL, selectArgs, err := selectQuery.
		OrderBy("t.id").
		Limit(uint64(page.Size)).
		Offset(uint64(page.Number * page.Size)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, selectSQL, selectArgs...)
	if err != nil {
		log.Errorln("Не удалось получить задачи:", err)
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task := models.Task{}
		err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority,
			&task.AuthorID, &task.AssigneeID, &task.CreatedAt)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Comments, err = s.taskComments(ctx, tasks[i].ID)
		if err != nil {
			return nil, err
		}
	}

	log.Infoln("Получено задач:", len(tasks))
	return &models.TaskPage{
		Items:      tasks,
		Total:      total,
		PageNumber: page.Number,
		PageSize:   page.Size,
	}, nil
}

func toPredicate(cond query.Condition) (sq.Sqlizer, error) {
	column, ok := taskColumns[cond.Field]
	if !ok {
		return nil, errs.ErrUnknownField
	}
	switch cond.Op {
	case query.Equals:
		return sq.Eq{column: cond.Value}, nil
	case query.Contains:
		value, ok := cond.Value.(string)
		if !ok {
			return nil, errs.ErrUnknownField
		}
		return sq.Like{column: "%" + value + "%"}, nil
	case query.LessOrEqual:
		return sq.LtOrEq{column: cond.Value}, nil
	}
	return nil, errs.ErrUnknownField
}

// UpdateTask блокирует строку (SELECT ... FOR UPDATE), применяет mutate
// и сохраняет в одной транзакции. CreatedAt не обновляется. Отмена
// запроса не прерывает начатую запись.
func (s *Storage) UpdateTask(ctx context.Context, id int64, mutate func(*models.Task) error) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, title, description, status, priority, author_id, assignee_id, created_at
		 FROM tasks WHERE id = $1 FOR UPDATE`, id)
	task := &models.Task{}
	err = row.Scan(&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.AuthorID, &task.AssigneeID, &task.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrTaskNotFound
		}
		return nil, err
	}

	createdAt := task.CreatedAt
	if err := mutate(task); err != nil {
		return nil, err
	}
	task.ID = id
	task.CreatedAt = createdAt

	_, err = tx.Exec(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, priority = $4, author_id = $5, assignee_id = $6 WHERE id = $7`,
		task.Title, task.Description, task.Status, task.Priority, task.AuthorID, task.AssigneeID, id)
	if err != nil {
		log.Errorln("Не удалось обновить задачу:", err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	task.Comments, err = s.taskComments(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Infoln("Задача успешно обновлена:", id)
	return task, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Errorln("Не удалось удалить задачу:", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrTaskNotFound
	}
	log.Infoln("Задача успешно удалена:", id)
	return nil
}

func (s *Storage) CreateComment(ctx context.Context, comment *models.Comment) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO comments (comment, author_id, task_id) VALUES ($1, $2, $3) RETURNING id, created_at`,
		comment.Text, comment.AuthorID, comment.TaskID)
	if err := row.Scan(&comment.ID, &comment.CreatedAt); err != nil {
		log.Errorln("Не удалось создать комментарий:", err)
		if isForeignKeyViolation(err) {
			return errs.ErrTaskNotFound
		}
		return err
	}
	return nil
}

func (s *Storage) GetCommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.pool.QueryRow(ctx,
		`SELECT id, comment, author_id, task_id, created_at FROM comments WHERE id = $1`, id)
	comment := &models.Comment{}
	err := row.Scan(&comment.ID, &comment.Text, &comment.AuthorID, &comment.TaskID, &comment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrCommentNotFound
		}
		return nil, err
	}
	return comment, nil
}

func (s *Storage) GetComments(ctx context.Context) ([]models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx,
		`SELECT id, comment, author_id, task_id, created_at FROM comments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.Comment])
}

func (s *Storage) UpdateComment(ctx context.Context, id int64, mutate func(*models.Comment) error) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT id, comment, author_id, task_id, created_at FROM comments WHERE id = $1 FOR UPDATE`, id)
	comment := &models.Comment{}
	err = row.Scan(&comment.ID, &comment.Text, &comment.AuthorID, &comment.TaskID, &comment.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrCommentNotFound
		}
		return nil, err
	}

	createdAt := comment.CreatedAt
	if err := mutate(comment); err != nil {
		return nil, err
	}
	comment.ID = id
	comment.CreatedAt = createdAt

	_, err = tx.Exec(ctx,
		`UPDATE comments SET comment = $1, author_id = $2, task_id = $3 WHERE id = $4`,
		comment.Text, comment.AuthorID, comment.TaskID, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *Storage) DeleteComment(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	ct, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrCommentNotFound
	}
	return nil
}

func (s *Storage) taskComments(ctx context.Context, taskID int64) ([]models.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, comment, author_id, task_id, created_at FROM comments WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	comments, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.Comment])
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, nil
	}
	return comments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var roles []string
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &roles, &user.Enabled); err != nil {
		return nil, err
	}
	for _, r := range roles {
		user.Roles = append(user.Roles, models.RoleType(r))
	}
	return user, nil
}

func rolesToStrings(roles []models.RoleType) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "email") {
			return errs.ErrEmailTaken
		}
		return errs.ErrUsernameTaken
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
