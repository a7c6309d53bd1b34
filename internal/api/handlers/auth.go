// auth.go — обработчики регистрации, подтверждения email и входа.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/neptunium/internal/api/errors"
	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/service"
)

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Email     string `json:"email"`
	ExpiresIn int    `json:"expiresIn"`
}

// sessionResponse — выданная сессия.
type sessionResponse struct {
	User      userView `json:"user"`
	Token     string   `json:"token"`
	ExpiresIn int      `json:"expiresIn"`
}

func newSessionResponse(res *service.AuthResult) sessionResponse {
	return sessionResponse{User: newUserView(res.User), Token: res.Token, ExpiresIn: res.ExpiresIn}
}

// Register — POST /auth/register. Отправляет код подтверждения на email.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Meta:            middleware.Meta(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, res.Message, registerResponse{Email: res.Email, ExpiresIn: res.ExpiresIn})
}

// VerifyEmail — POST /auth/verify-email. Погашает код и создаёт пользователя.
func (h *APIHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.auth.VerifyEmail(r.Context(), service.VerifyInput{
		Email: req.Email,
		Code:  req.Code,
		Meta:  middleware.Meta(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Email подтверждён, регистрация завершена", newSessionResponse(res))
}

// Login — POST /auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	res, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     middleware.Meta(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Вход выполнен", newSessionResponse(res))
}
