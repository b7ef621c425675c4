package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"taskman/internal/auth"
	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
)

const (
	defaultPageNumber = 0
	defaultPageSize   = 20
)

type UserManager interface {
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	Create(ctx context.Context, rq models.UserRequest) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindAll(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, principal models.Principal, id int64, rq models.UserRequest) (*models.User, error)
	ChangePassword(ctx context.Context, id int64, rq models.PasswordRequest) error
	Delete(ctx context.Context, id int64) error
}

type TaskManager interface {
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	FindAll(ctx context.Context, page models.Page) (*models.TaskPage, error)
	FilterBy(ctx context.Context, filter models.TaskFilter) (*models.TaskPage, error)
	FindByCriteria(ctx context.Context, criteria map[string]string, page models.Page) (*models.TaskPage, error)
	Create(ctx context.Context, rq models.TaskRequest) (*models.Task, error)
	Update(ctx context.Context, principal models.Principal, id int64, rq models.TaskRequest) (*models.Task, error)
	Delete(ctx context.Context, id int64) error
}

type CommentManager interface {
	FindByID(ctx context.Context, id int64) (*models.Comment, error)
	FindAll(ctx context.Context) ([]models.Comment, error)
	Create(ctx context.Context, principal models.Principal, rq models.CommentRequest) (*models.Comment, error)
	Update(ctx context.Context, id int64, rq models.CommentRequest) (*models.Comment, error)
	Delete(ctx context.Context, id int64) error
}

type TaskAPI struct {
	httpSrv  *http.Server
	users    UserManager
	tasks    TaskManager
	comments CommentManager
	tokens   *auth.Provider
	checker  TokenChecker
}

func NewTaskAPI(cfg *Config, users UserManager, tasks TaskManager, comments CommentManager, tokens *auth.Provider, checker TokenChecker) *TaskAPI {
	if cfg == nil || users == nil || tasks == nil || comments == nil || tokens == nil || checker == nil {
		return nil
	}

	httpSrv := http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
	}

	api := TaskAPI{
		httpSrv:  &httpSrv,
		users:    users,
		tasks:    tasks,
		comments: comments,
		tokens:   tokens,
		checker:  checker,
	}

	api.configRoutes()

	return &api
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errs.ErrInternalServer
	}

	if api.httpSrv.Addr == "" {
		api.httpSrv.Addr = ":8080"
	}

	return api.httpSrv.ListenAndServe()
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

// Чтение задач и оба пути поиска открыты без аутентификации, изменение
// задач и комментарии требуют токена, управление пользователями —
// прав администратора либо доступа к собственному ресурсу.
func (api *TaskAPI) configRoutes() {
	router := gin.Default()

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "использован некорректный HTTP-метод"})
	})

	authRequired := Authenticate(api.tokens, api.checker)

	v1 := router.Group("/api/v1")

	user := v1.Group("/user")
	{
		user.POST("/login", api.login)

		admin := user.Group("", authRequired, RequireAdmin())
		{
			admin.POST("", api.createUser)
			admin.GET("", api.getUsers)
			admin.DELETE("/:userID", api.deleteUser)
		}

		owner := user.Group("", authRequired, RequireAdminOrSelf())
		{
			owner.GET("/:userID", api.getUser)
			owner.PUT("/:userID", api.updateUser)
			owner.PATCH("/:userID/password", api.changePassword)
		}
	}

	task := v1.Group("/task")
	{
		task.GET("", api.getTasks)
		task.GET("/filter", api.filterTasks)
		task.GET("/:taskID", api.getTask)
		task.POST("/search", api.searchTasks)

		task.POST("", authRequired, api.createTask)
		task.PUT("/:taskID", authRequired, api.updateTask)
		task.DELETE("/:taskID", authRequired, api.deleteTask)
	}

	comment := v1.Group("/comment", authRequired)
	{
		comment.GET("", api.getComments)
		comment.GET("/:commentID", api.getComment)
		comment.POST("", api.createComment)
		comment.PUT("/:commentID", api.updateComment)
		comment.DELETE("/:commentID", api.deleteComment)
	}

	api.httpSrv.Handler = router
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "некорректные данные запроса"})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	user, token, err := api.users.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "вход выполнен успешно",
		"token":   token,
		"user":    user,
	})
}

func (api *TaskAPI) createUser(ctx *gin.Context) {
	var req models.UserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "некорректные данные пользователя"})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	user, err := api.users.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "пользователь успешно создан",
		"user":    user,
	})
}

func (api *TaskAPI) getUsers(ctx *gin.Context) {
	users, err := api.users.FindAll(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (api *TaskAPI) getUser(ctx *gin.Context) {
	id, err := parseID(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	user, err := api.users.FindByID(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

func (api *TaskAPI) updateUser(ctx *gin.Context) {
	id, err := parseID(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	var req models.UserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "некорректные данные запроса"})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	principal, ok := principalFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Error()})
		return
	}

	user, err := api.users.Update(ctx.Request.Context(), principal, id, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": "пользователь успешно обновлен",
		"user":    user,
	})
}

func (api *TaskAPI) changePassword(ctx *gin.Context) {
	id, err := parseID(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	var req models.PasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "некорректные данные запроса"})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrValidationFailed.Error()})
		return
	}

	if err := api.users.ChangePassword(ctx.Request.Context(), id, req); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "пароль успешно изменён"})
}

func (api *TaskAPI) deleteUser(ctx *gin.Context) {
	id, err := parseID(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	if err := api.users.Delete(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "пользователь успешно удален"})
}

func (api *TaskAPI) getTasks(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	tasks, err := api.tasks.FindAll(ctx.Request.Context(), page)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, tasks)
}

func (api *TaskAPI) getTask(ctx *gin.Context) {
	id, err := parseID(ctx.Param("taskID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	task, err := api.tasks.FindByID(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) filterTasks(ctx *gin.Context) {
	var filter models.TaskFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	tasks, err := api.tasks.FilterBy(ctx.Request.Context(), filter)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, tasks)
}

// Пагинация передаётся в теле вместе с критериями; отсутствующие
// значения заменяются значениями по умолчанию.
func (api *TaskAPI) searchTasks(ctx *gin.Context) {
	criteria := map[string]string{}
	if err := ctx.ShouldBindJSON(&criteria); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	page, err := pageFromCriteria(criteria)
	if err != nil {
		respondError(ctx, err)
		return
	}

	tasks, err := api.tasks.FindByCriteria(ctx.Request.Context(), criteria, page)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, tasks)
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	var req models.TaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	task, err := api.tasks.Create(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"task": task})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	id, err := parseID(ctx.Param("taskID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	var req models.TaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	principal, ok := principalFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Error()})
		return
	}

	task, err := api.tasks.Update(ctx.Request.Context(), principal, id, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	id, err := parseID(ctx.Param("taskID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	if err := api.tasks.Delete(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "задача успешно удалена"})
}

func (api *TaskAPI) getComments(ctx *gin.Context) {
	comments, err := api.comments.FindAll(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (api *TaskAPI) getComment(ctx *gin.Context) {
	id, err := parseID(ctx.Param("commentID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	comment, err := api.comments.FindByID(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"comment": comment})
}

func (api *TaskAPI) createComment(ctx *gin.Context) {
	var req models.CommentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	principal, ok := principalFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusForbidden, gin.H{"error": errs.ErrForbidden.Error()})
		return
	}

	comment, err := api.comments.Create(ctx.Request.Context(), principal, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func (api *TaskAPI) updateComment(ctx *gin.Context) {
	id, err := parseID(ctx.Param("commentID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	var req models.CommentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	valid := validator.New()
	if err := valid.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	comment, err := api.comments.Update(ctx.Request.Context(), id, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"comment": comment})
}

func (api *TaskAPI) deleteComment(ctx *gin.Context) {
	id, err := parseID(ctx.Param("commentID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrBadRequest.Error()})
		return
	}

	if err := api.comments.Delete(ctx.Request.Context(), id); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "комментарий успешно удален"})
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func pageFromQuery(ctx *gin.Context) (models.Page, error) {
	page := models.Page{Number: defaultPageNumber, Size: defaultPageSize}

	if v := ctx.Query("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return models.Page{}, errs.ErrBadRequest
		}
		page.Number = n
	}
	if v := ctx.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return models.Page{}, errs.ErrBadRequest
		}
		page.Size = n
	}

	return page, nil
}

func pageFromCriteria(criteria map[string]string) (models.Page, error) {
	page := models.Page{Number: defaultPageNumber, Size: defaultPageSize}

	if v, ok := criteria["pageNumber"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return models.Page{}, fmt.Errorf("%w: pageNumber %q", errs.ErrConversionFailed, v)
		}
		page.Number = n
		delete(criteria, "pageNumber")
	}
	if v, ok := criteria["pageSize"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return models.Page{}, fmt.Errorf("%w: pageSize %q", errs.ErrConversionFailed, v)
		}
		page.Size = n
		delete(criteria, "pageSize")
	}

	return page, nil
}

func respondError(ctx *gin.Context, err error) {
	switch {
	case isAnyOf(err, errs.ErrUserNotFound, errs.ErrTaskNotFound, errs.ErrCommentNotFound, errs.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case isAnyOf(err, errs.ErrInvalidCredentials, errs.ErrUnauthorized, errs.ErrTokenNotCurrent):
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case isAnyOf(err, errs.ErrForbidden):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case isAnyOf(err, errs.ErrUsernameTaken, errs.ErrEmailTaken, errs.ErrConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case isAnyOf(err,
		errs.ErrBadRequest, errs.ErrPageRequired, errs.ErrConversionFailed,
		errs.ErrInvalidStatus, errs.ErrInvalidPriority, errs.ErrInvalidRole,
		errs.ErrPasswordMismatch, errs.ErrPasswordPolicy, errs.ErrInvalidPassword,
		errs.ErrValidationFailed):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errs.ErrInternalServer.Error()})
	}
}

func isAnyOf(err error, targets ...error) bool {
	for _, target := range targets {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationErrorToErrorResponse(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			switch verr.Field() {
			case "Username":
				return errs.ErrInvalidUsername
			case "Email":
				return errs.ErrInvalidEmail
			case "Password":
				return errs.ErrInvalidPassword
			case "Roles":
				return errs.ErrInvalidRole
			case "Title":
				return errs.ErrInvalidTitle
			case "Description":
				return errs.ErrInvalidDescription
			case "Text":
				return errs.ErrInvalidComment
			}
		}
	}
	return errs.ErrValidationFailed
}
