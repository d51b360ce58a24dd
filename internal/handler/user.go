package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/user"
)

type CreateUserRequest struct {
	Fullname    string `json:"fullname" validate:"required,min=2"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required,min=5"`
	Password    string `json:"password" validate:"required,min=8"`
}

type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Fullname    string    `json:"fullname"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Fullname:    u.Fullname,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type UserHandler struct {
	service  user.Service
	validate *validator.Validate
}

func NewUserHandler(service user.Service) *UserHandler {
	validate := validator.New()
	return &UserHandler{
		service:  service,
		validate: validate,
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Post("/users", h.handleCreateUser)
	router.Get("/users/{id}", h.handleGetUserByID)
	router.Get("/users/email/{email}", h.handleGetUserByEmail)
}

func (h *UserHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateUserRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	domainUser := user.User{
		Fullname:     requestPayload.Fullname,
		Email:        requestPayload.Email,
		PhoneNumber:  requestPayload.PhoneNumber,
		PasswordHash: requestPayload.Password,
	}

	createdUser, err := h.service.CreateUser(r.Context(), &domainUser)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user via service")

		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, user.ErrEmailExists):
			clientMessage = "Email already exists"
		case errors.Is(err, user.ErrPhoneExists):
			clientMessage = "Phone number already exists"
		default:
			clientMessage = "Failed to create user"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	respondWithJSON(w, http.StatusCreated, toUserResponse(createdUser))
}

func (h *UserHandler) handleGetUserByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	foundUser, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		h.respondLookupError(w, err, "Failed to get user by id")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(foundUser))
}

func (h *UserHandler) handleGetUserByEmail(w http.ResponseWriter, r *http.Request) {
	emailParam := chi.URLParam(r, "email")
	if emailParam == "" {
		respondWithError(w, http.StatusBadRequest, "Email parameter cannot be empty")
		return
	}

	foundUser, err := h.service.GetUserByEmail(r.Context(), emailParam)
	if err != nil {
		h.respondLookupError(w, err, "Failed to get user by email")
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(foundUser))
}

func (h *UserHandler) respondLookupError(w http.ResponseWriter, err error, fallback string) {
	log.Error().Err(err).Msg(fallback + " via service")

	clientMessage := fallback
	if errors.Is(err, user.ErrNotFound) {
		clientMessage = "User not found"
	}
	respondWithError(w, mapErrorToStatusCode(err), clientMessage)
}
