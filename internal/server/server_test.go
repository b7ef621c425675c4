package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskman/internal/auth"
	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUserManager struct {
	mock.Mock
}

func (m *MockUserManager) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*models.User), args.String(1), args.Error(2)
}

func (m *MockUserManager) Create(ctx context.Context, rq models.UserRequest) (*models.User, error) {
	args := m.Called(ctx, rq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserManager) FindByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserManager) FindAll(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserManager) Update(ctx context.Context, principal models.Principal, id int64, rq models.UserRequest) (*models.User, error) {
	args := m.Called(ctx, principal, id, rq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserManager) ChangePassword(ctx context.Context, id int64, rq models.PasswordRequest) error {
	args := m.Called(ctx, id, rq)
	return args.Error(0)
}

func (m *MockUserManager) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockTaskManager struct {
	mock.Mock
}

func (m *MockTaskManager) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskManager) FindAll(ctx context.Context, page models.Page) (*models.TaskPage, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskPage), args.Error(1)
}

func (m *MockTaskManager) FilterBy(ctx context.Context, filter models.TaskFilter) (*models.TaskPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskPage), args.Error(1)
}

func (m *MockTaskManager) FindByCriteria(ctx context.Context, criteria map[string]string, page models.Page) (*models.TaskPage, error) {
	args := m.Called(ctx, criteria, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaskPage), args.Error(1)
}

func (m *MockTaskManager) Create(ctx context.Context, rq models.TaskRequest) (*models.Task, error) {
	args := m.Called(ctx, rq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskManager) Update(ctx context.Context, principal models.Principal, id int64, rq models.TaskRequest) (*models.Task, error) {
	args := m.Called(ctx, principal, id, rq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskManager) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockCommentManager struct {
	mock.Mock
}

func (m *MockCommentManager) FindByID(ctx context.Context, id int64) (*models.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentManager) FindAll(ctx context.Context) ([]models.Comment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *MockCommentManager) Create(ctx context.Context, principal models.Principal, rq models.CommentRequest) (*models.Comment, error) {
	args := m.Called(ctx, principal, rq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentManager) Update(ctx context.Context, id int64, rq models.CommentRequest) (*models.Comment, error) {
	args := m.Called(ctx, id, rq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockCommentManager) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type testEnv struct {
	api      *TaskAPI
	users    *MockUserManager
	tasks    *MockTaskManager
	comments *MockCommentManager
	checker  *MockTokenChecker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		users:    new(MockUserManager),
		tasks:    new(MockTaskManager),
		comments: new(MockCommentManager),
		checker:  new(MockTokenChecker),
	}

	cfg := &Config{Addr: "127.0.0.1", Port: 8080}
	provider := auth.NewProvider(testSecret, time.Hour)
	env.api = NewTaskAPI(cfg, env.users, env.tasks, env.comments, provider, env.checker)
	require.NotNil(t, env.api)
	return env
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.api.httpSrv.Handler.ServeHTTP(w, req)
	return w
}

func (env *testEnv) authorize(t *testing.T, user *models.User) string {
	t.Helper()
	token := issueToken(t, user)
	env.checker.On("IsTokenCurrent", mock.Anything, user.ID, token).Return(true, nil)
	return "Bearer " + token
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(data)
}

func TestLoginRoute(t *testing.T) {
	tests := []struct {
		name      string
		request   models.LoginRequest
		mockSetup func(users *MockUserManager)
		want      struct {
			statusCode int
			token      string
		}
	}{
		{
			name:    "successful login returns token",
			request: models.LoginRequest{Username: "alice", Password: "Password1"},
			mockSetup: func(users *MockUserManager) {
				user := &models.User{ID: 1, Username: "alice", Roles: []models.RoleType{models.RoleUser}, Enabled: true}
				users.On("Login", mock.Anything, "alice", "Password1").Return(user, "tok1", nil)
			},
			want: struct {
				statusCode int
				token      string
			}{
				statusCode: http.StatusOK,
				token:      "tok1",
			},
		},
		{
			name:    "wrong credentials",
			request: models.LoginRequest{Username: "alice", Password: "Password2"},
			mockSetup: func(users *MockUserManager) {
				users.On("Login", mock.Anything, "alice", "Password2").Return(nil, "", errs.ErrInvalidCredentials)
			},
			want: struct {
				statusCode int
				token      string
			}{
				statusCode: http.StatusUnauthorized,
			},
		},
		{
			name:      "validation rejects short password",
			request:   models.LoginRequest{Username: "alice", Password: "short"},
			mockSetup: func(users *MockUserManager) {},
			want: struct {
				statusCode int
				token      string
			}{
				statusCode: http.StatusBadRequest,
			},
		},
		{
			name:    "disabled account",
			request: models.LoginRequest{Username: "alice", Password: "Password1"},
			mockSetup: func(users *MockUserManager) {
				users.On("Login", mock.Anything, "alice", "Password1").Return(nil, "", errs.ErrForbidden)
			},
			want: struct {
				statusCode int
				token      string
			}{
				statusCode: http.StatusForbidden,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.mockSetup(env.users)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/user/login", jsonBody(t, tt.request))
			req.Header.Set("Content-Type", "application/json")
			w := env.do(req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			if tt.want.token != "" {
				var resp struct {
					Token string `json:"token"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.want.token, resp.Token)
			}
			env.users.AssertExpectations(t)
		})
	}
}

func TestTaskReadRoutesArePublic(t *testing.T) {
	env := newTestEnv(t)
	task := &models.Task{ID: 5, Title: "задача", Status: models.StatusWaiting, Priority: models.PriorityMedium, AuthorID: 1}
	env.tasks.On("FindByID", mock.Anything, int64(5)).Return(task, nil)
	env.tasks.On("FindAll", mock.Anything, models.Page{Number: 0, Size: 20}).
		Return(&models.TaskPage{Items: []models.Task{*task}, Total: 1, PageSize: 20}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/task/5", nil)
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/task", nil)
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	env.tasks.AssertExpectations(t)
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.On("FindByID", mock.Anything, int64(99)).Return(nil, errs.ErrTaskNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/task/99", nil)
	w := env.do(req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), errs.ErrTaskNotFound.Error())
}

func TestGetTaskBadID(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/task/abc", nil)
	w := env.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.tasks.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestSearchTasks(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]string
		mockSetup func(tasks *MockTaskManager)
		want      struct {
			statusCode int
		}
	}{
		{
			name: "pagination keys are stripped from criteria",
			body: map[string]string{"status": "waiting", "pageNumber": "2", "pageSize": "5"},
			mockSetup: func(tasks *MockTaskManager) {
				tasks.On("FindByCriteria", mock.Anything, map[string]string{"status": "waiting"}, models.Page{Number: 2, Size: 5}).
					Return(&models.TaskPage{PageNumber: 2, PageSize: 5}, nil)
			},
			want: struct{ statusCode int }{statusCode: http.StatusOK},
		},
		{
			name: "defaults apply when pagination is absent",
			body: map[string]string{"title": "отчёт"},
			mockSetup: func(tasks *MockTaskManager) {
				tasks.On("FindByCriteria", mock.Anything, map[string]string{"title": "отчёт"}, models.Page{Number: 0, Size: 20}).
					Return(&models.TaskPage{PageSize: 20}, nil)
			},
			want: struct{ statusCode int }{statusCode: http.StatusOK},
		},
		{
			name: "unparsable page size",
			body: map[string]string{"pageSize": "many"},
			mockSetup: func(tasks *MockTaskManager) {
			},
			want: struct{ statusCode int }{statusCode: http.StatusBadRequest},
		},
		{
			name: "invalid status value",
			body: map[string]string{"status": "bogus"},
			mockSetup: func(tasks *MockTaskManager) {
				tasks.On("FindByCriteria", mock.Anything, map[string]string{"status": "bogus"}, models.Page{Number: 0, Size: 20}).
					Return(nil, errs.ErrInvalidStatus)
			},
			want: struct{ statusCode int }{statusCode: http.StatusBadRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.mockSetup(env.tasks)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/task/search", jsonBody(t, tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := env.do(req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			env.tasks.AssertExpectations(t)
		})
	}
}

func TestFilterTasksRequiresPagination(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.On("FilterBy", mock.Anything, mock.AnythingOfType("models.TaskFilter")).
		Return(nil, errs.ErrPageRequired)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/task/filter?status=WAITING", nil)
	w := env.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errs.ErrPageRequired.Error())
}

func TestFilterTasksPassesBoundFilter(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.On("FilterBy", mock.Anything, mock.MatchedBy(func(f models.TaskFilter) bool {
		return f.PageNumber != nil && *f.PageNumber == 1 &&
			f.PageSize != nil && *f.PageSize == 10 &&
			f.Status != nil && *f.Status == models.StatusWaiting
	})).Return(&models.TaskPage{PageNumber: 1, PageSize: 10}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/task/filter?pageNumber=1&pageSize=10&status=WAITING", nil)
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	env.tasks.AssertExpectations(t)
}

func TestTaskMutationsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	body := jsonBody(t, models.TaskRequest{Title: "задача", AuthorID: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/task", body)
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env.tasks.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpdateTaskPassesPrincipal(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{ID: 3, Username: "bob", Roles: []models.RoleType{models.RoleUser}}
	header := env.authorize(t, user)

	task := &models.Task{ID: 10, Title: "задача", Status: models.StatusFinished, Priority: models.PriorityLow, AuthorID: 3}
	env.tasks.On("Update", mock.Anything,
		models.Principal{UserID: 3, Roles: []models.RoleType{models.RoleUser}},
		int64(10), mock.AnythingOfType("models.TaskRequest")).Return(task, nil)

	body := jsonBody(t, models.TaskRequest{Title: "задача", Status: "FINISHED", AuthorID: 3})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/task/10", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	env.tasks.AssertExpectations(t)
}

func TestUserAdminRoutes(t *testing.T) {
	tests := []struct {
		name      string
		roles     []models.RoleType
		mockSetup func(users *MockUserManager)
		want      struct {
			statusCode int
		}
	}{
		{
			name:  "admin creates user",
			roles: []models.RoleType{models.RoleAdmin},
			mockSetup: func(users *MockUserManager) {
				created := &models.User{ID: 2, Username: "bob", Email: "bob@example.com", Roles: []models.RoleType{models.RoleUser}}
				users.On("Create", mock.Anything, mock.AnythingOfType("models.UserRequest")).Return(created, nil)
			},
			want: struct{ statusCode int }{statusCode: http.StatusCreated},
		},
		{
			name:      "plain user is rejected",
			roles:     []models.RoleType{models.RoleUser},
			mockSetup: func(users *MockUserManager) {},
			want:      struct{ statusCode int }{statusCode: http.StatusForbidden},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.mockSetup(env.users)
			header := env.authorize(t, &models.User{ID: 1, Username: "root", Roles: tt.roles})

			body := jsonBody(t, models.UserRequest{Username: "bob", Email: "bob@example.com", Password: "Password1"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/user", body)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", header)
			w := env.do(req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			env.users.AssertExpectations(t)
		})
	}
}

func TestCreateUserConflict(t *testing.T) {
	env := newTestEnv(t)
	header := env.authorize(t, &models.User{ID: 1, Username: "root", Roles: []models.RoleType{models.RoleAdmin}})
	env.users.On("Create", mock.Anything, mock.AnythingOfType("models.UserRequest")).
		Return(nil, errs.ErrUsernameTaken)

	body := jsonBody(t, models.UserRequest{Username: "bob", Email: "bob@example.com", Password: "Password1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/user", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)
	w := env.do(req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), errs.ErrUsernameTaken.Error())
}

func TestGetUserSelf(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{ID: 7, Username: "alice", Roles: []models.RoleType{models.RoleUser}}
	header := env.authorize(t, user)
	env.users.On("FindByID", mock.Anything, int64(7)).Return(user, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/7", nil)
	req.Header.Set("Authorization", header)
	w := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/user/8", nil)
	req.Header.Set("Authorization", header)
	w = env.do(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChangePasswordRoute(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{ID: 7, Username: "alice", Roles: []models.RoleType{models.RoleUser}}
	header := env.authorize(t, user)
	env.users.On("ChangePassword", mock.Anything, int64(7), mock.AnythingOfType("models.PasswordRequest")).
		Return(errs.ErrPasswordPolicy)

	body := jsonBody(t, models.PasswordRequest{OldPassword: "OldPass1", NewPassword: "weak1234", ConfirmNewPassword: "weak1234"})
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/user/7/password", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)
	w := env.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errs.ErrPasswordPolicy.Error())
}

func TestCommentRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/comment", nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestCreateCommentSetsAuthor(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{ID: 4, Username: "carol", Roles: []models.RoleType{models.RoleUser}}
	header := env.authorize(t, user)

	comment := &models.Comment{ID: 1, Text: "готово", AuthorID: 4, TaskID: 10}
	env.comments.On("Create", mock.Anything,
		models.Principal{UserID: 4, Roles: []models.RoleType{models.RoleUser}},
		models.CommentRequest{Text: "готово", TaskID: 10}).Return(comment, nil)

	body := jsonBody(t, models.CommentRequest{Text: "готово", TaskID: 10})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/comment", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)
	w := env.do(req)

	assert.Equal(t, http.StatusCreated, w.Code)
	env.comments.AssertExpectations(t)
}

func TestCreateCommentTooShort(t *testing.T) {
	env := newTestEnv(t)
	user := &models.User{ID: 4, Username: "carol", Roles: []models.RoleType{models.RoleUser}}
	header := env.authorize(t, user)

	body := jsonBody(t, models.CommentRequest{Text: "ок", TaskID: 10})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/comment", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)
	w := env.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.comments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}
