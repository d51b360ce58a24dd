package user

import (
	"time"

	"github.com/gofrs/uuid"
)

const RoleUser = "user"

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Fullname     string    `json:"fullname" db:"fullname"`
	Email        string    `json:"email" db:"email"`
	PhoneNumber  string    `json:"phoneNumber" db:"phone_number"`
	PasswordHash string    `json:"-" db:"password_hash"` // raw password on input, bcrypt hash once stored
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
