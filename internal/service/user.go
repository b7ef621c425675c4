package service

import (
	"context"
	"unicode"

	errs "taskman/internal/domain/errors"
	"taskman/internal/domain/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	users     UserRepository
	whitelist Whitelist
	tokens    TokenProvider
}

func NewUserService(users UserRepository, whitelist Whitelist, tokens TokenProvider) *UserService {
	if users == nil || whitelist == nil || tokens == nil {
		return nil
	}
	return &UserService{users: users, whitelist: whitelist, tokens: tokens}
}

// Login проверяет учетные данные, выпускает токен и записывает его в
// whitelist: прежняя сессия пользователя при этом вытесняется.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, "", errs.ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, "", errs.ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", errs.ErrInvalidCredentials
	}

	token, err := s.tokens.CreateToken(user)
	if err != nil {
		return nil, "", err
	}
	if err := s.whitelist.Set(ctx, user.ID, token); err != nil {
		log.Errorln("Не удалось записать токен в whitelist:", err)
		return nil, "", err
	}
	log.Infoln("Вход выполнен успешно:", user.Username)
	return user, token, nil
}

func (s *UserService) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *UserService) FindAll(ctx context.Context) ([]models.User, error) {
	return s.users.GetUsers(ctx)
}

func (s *UserService) Create(ctx context.Context, rq models.UserRequest) (*models.User, error) {
	if rq.Password == "" {
		return nil, errs.ErrInvalidPassword
	}
	roles, err := parseRoles(rq.Roles)
	if err != nil {
		return nil, err
	}
	if err := s.validateUniqueFields(ctx, rq.Username, rq.Email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rq.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username: rq.Username,
		Email:    rq.Email,
		Password: string(hash),
		Roles:    roles,
		Enabled:  rq.Enabled,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Infoln("Пользователь успешно создан:", user.ID)
	return user, nil
}

func (s *UserService) validateUniqueFields(ctx context.Context, username, email string) error {
	taken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return errs.ErrUsernameTaken
	}
	inUse, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if inUse {
		return errs.ErrEmailTaken
	}
	return nil
}

// Update меняет имя пользователя для самого пользователя; администратор
// дополнительно меняет email, роли и признак активности. Проверки
// уникальности выполняются до UpdateUser: mutate вызывается внутри
// блокировки хранилища и не должен обращаться к нему повторно.
func (s *UserService) Update(ctx context.Context, principal models.Principal, id int64, rq models.UserRequest) (*models.User, error) {
	var roles []models.RoleType
	if len(rq.Roles) > 0 {
		parsed, err := parseRoles(rq.Roles)
		if err != nil {
			return nil, err
		}
		roles = parsed
	}

	current, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Username != rq.Username {
		taken, err := s.users.UsernameExists(ctx, rq.Username)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, errs.ErrUsernameTaken
		}
	}
	if principal.IsAdmin() && current.Email != rq.Email {
		inUse, err := s.users.EmailExists(ctx, rq.Email)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, errs.ErrEmailTaken
		}
	}

	return s.users.UpdateUser(ctx, id, func(existing *models.User) error {
		existing.Username = rq.Username

		if !principal.IsAdmin() {
			return nil
		}

		existing.Email = rq.Email
		existing.Enabled = rq.Enabled
		if len(roles) > 0 {
			existing.Roles = roles
		}
		return nil
	})
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	if _, err := s.users.GetUserByID(ctx, id); err != nil {
		return err
	}
	return s.users.DeleteUser(ctx, id)
}

// ChangePassword проверяет старый пароль, применяет политику паролей и
// удаляет запись whitelist, что делает выданные ранее токены
// недействительными.
func (s *UserService) ChangePassword(ctx context.Context, id int64, rq models.PasswordRequest) error {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(rq.OldPassword)); err != nil {
		return errs.ErrInvalidCredentials
	}
	if rq.NewPassword != rq.ConfirmNewPassword {
		return errs.ErrPasswordMismatch
	}
	if !passwordMeetsPolicy(rq.NewPassword) {
		return errs.ErrPasswordPolicy
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rq.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := s.users.UpdateUser(ctx, id, func(existing *models.User) error {
		existing.Password = string(hash)
		return nil
	}); err != nil {
		return err
	}

	if err := s.whitelist.Delete(ctx, id); err != nil {
		log.Errorln("Не удалось удалить токен из whitelist:", err)
		return err
	}
	log.Infoln("Пароль успешно изменён:", id)
	return nil
}

// Минимум 8 символов, хотя бы одна цифра, строчная и заглавная буквы.
func passwordMeetsPolicy(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	return hasDigit && hasLower && hasUpper
}

func parseRoles(raw []string) ([]models.RoleType, error) {
	if len(raw) == 0 {
		return []models.RoleType{models.RoleUser}, nil
	}
	roles := make([]models.RoleType, 0, len(raw))
	for _, r := range raw {
		role, err := models.ParseRole(r)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}
