package models

import "time"

type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationWithdrawn RegistrationStatus = "withdrawn"
)

// Registration — запись в леджере регистраций. На пару (турнир, пользователь)
// в любой момент времени существует не больше одной активной записи;
// повторная регистрация после отзыва создаёт новую запись, история сохраняется.
type Registration struct {
	ID           int                `json:"id"`
	UserID       int                `json:"user_id"`
	TournamentID int                `json:"tournament_id"`
	RegisteredAt time.Time          `json:"registration_date"`
	Status       RegistrationStatus `json:"status"`
	Seed         *int               `json:"seed,omitempty"` // назначается внешней системой сеток

	User *User `json:"user,omitempty"`
}
