package entity

import "time"

type Guardian struct {
	ID         int64     `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	TelegramID string    `json:"telegram_id,omitempty" db:"telegram_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Child struct {
	ID         int64     `json:"id" db:"id"`
	GuardianID int64     `json:"guardian_id" db:"guardian_id"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	BirthDate  Date      `json:"birth_date" db:"birth_date"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (c *Child) FullName() string {
	return c.FirstName + " " + c.LastName
}
