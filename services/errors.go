package services

import "errors"

// Общие ошибки сервисного слоя, используемые в маппинге HTTP.
var (
	// Ресурс не найден
	ErrNotFound           = errors.New("requested resource not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrTournamentNotFound = errors.New("tournament not found")

	// Ошибки валидации создаваемого турнира
	ErrTournamentNameRequired     = errors.New("tournament name is required")
	ErrTournamentInvalidDateRange = errors.New("tournament end date must be after start date")
	ErrTournamentInvalidRegDate   = errors.New("registration deadline must not be after the start date")
	ErrTournamentInvalidCapacity  = errors.New("tournament max participants must be positive")

	// Ошибки жизненного цикла
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")

	// Ожидаемые отказы контроля допуска: нормальный исход конкуренции за
	// места, а не баги. Каждому соответствует свой HTTP-ответ.
	ErrTournamentClosed   = errors.New("tournament is not accepting registration changes")
	ErrRegistrationClosed = errors.New("registration deadline has passed")
	ErrTournamentFull     = errors.New("tournament registration is full")
	ErrAlreadyRegistered  = errors.New("user is already registered for this tournament")
	ErrNotRegistered      = errors.New("user is not registered for this tournament")

	// Ошибки аутентификации и авторизации
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrAuthNicknameTaken      = errors.New("nickname is already taken")
	ErrPasswordTooShort       = errors.New("password is too short")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")

	ErrUploaderNotConfigured = errors.New("file storage is not configured")
)
