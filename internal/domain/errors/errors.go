package errors

import "errors"

var (
	ErrUserNotFound       = errors.New("пользователь не найден")
	ErrTaskNotFound       = errors.New("задача не найдена")
	ErrCommentNotFound    = errors.New("комментарий не найден")
	ErrInvalidCredentials = errors.New("неверные учетные данные")
	ErrUsernameTaken      = errors.New("имя пользователя уже занято")
	ErrEmailTaken         = errors.New("email уже используется")
	ErrValidationFailed   = errors.New("ошибка валидации")
	ErrUnauthorized       = errors.New("нет доступа")
	ErrForbidden          = errors.New("доступ запрещён")
	ErrInternalServer     = errors.New("внутренняя ошибка сервера")
	ErrBadRequest         = errors.New("неверный запрос")
	ErrNotFound           = errors.New("ресурс не найден")
	ErrConflict           = errors.New("конфликт ресурса")
	ErrConversionFailed   = errors.New("не удалось преобразовать запрос")

	ErrPageRequired    = errors.New("необходимо указать номер и размер страницы")
	ErrUnknownField    = errors.New("неизвестное поле фильтра")
	ErrInvalidStatus   = errors.New("недопустимое значение поля status")
	ErrInvalidPriority = errors.New("недопустимое значение поля priority")
	ErrInvalidRole     = errors.New("недопустимая роль пользователя")

	ErrPasswordMismatch = errors.New("новый пароль и подтверждение не совпадают")
	ErrPasswordPolicy   = errors.New("новый пароль не соответствует требованиям безопасности")
	ErrTokenNotCurrent  = errors.New("токен недействителен")

	ErrInvalidUsername    = errors.New("некорректное имя пользователя")
	ErrInvalidEmail       = errors.New("некорректный email")
	ErrInvalidPassword    = errors.New("некорректный пароль")
	ErrInvalidTitle       = errors.New("некорректный заголовок задачи")
	ErrInvalidDescription = errors.New("некорректное описание задачи")
	ErrInvalidComment     = errors.New("некорректный текст комментария")

	ErrConfigFileReadFailed = errors.New("не удалось прочитать файл конфигурации")
	ErrConfigParseFailed    = errors.New("не удалось разобрать файл конфигурации")
	ErrConfigInvalidFormat  = errors.New("некорректное значение конфигурации")
)
