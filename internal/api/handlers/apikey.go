// apikey.go — обработчики /api-key: список, выпуск и деактивация ключей.
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/neptunium/internal/api/errors"
	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/service"
)

type createAPIKeyRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
	RateLimit   int      `json:"rateLimit"`
	// ExpiresIn — срок действия в днях
	ExpiresIn *int `json:"expiresIn"`
}

type apiKeyListResponse struct {
	APIKeys []apiKeyView `json:"apiKeys"`
	Total   int          `json:"total"`
}

type apiKeyCreatedResponse struct {
	APIKey createdKeyView `json:"apiKey"`
}

type apiKeyDeletedResponse struct {
	ID string `json:"id"`
}

// ListAPIKeys — GET /api-key.
func (h *APIHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	requester := middleware.RequesterFromContext(r.Context())

	keys, err := h.keys.List(r.Context(), requester.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	views := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, newAPIKeyView(k))
	}
	writeSuccess(w, http.StatusOK, "Список API-ключей", apiKeyListResponse{APIKeys: views, Total: len(views)})
}

// CreateAPIKey — POST /api-key. Секрет возвращается только в этом ответе.
func (h *APIHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	requester := middleware.RequesterFromContext(r.Context())

	var req createAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	created, err := h.keys.Create(r.Context(), requester.UserID, service.CreateKeyInput{
		Name:          req.Name,
		Description:   req.Description,
		Permissions:   req.Permissions,
		RateLimit:     req.RateLimit,
		ExpiresInDays: req.ExpiresIn,
	}, middleware.Meta(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	k := created.Key
	writeSuccess(w, http.StatusCreated, "API-ключ создан. Сохраните его: повторно он не показывается", apiKeyCreatedResponse{
		APIKey: createdKeyView{
			ID:          k.ID,
			Name:        k.Name,
			Description: k.Description,
			Key:         created.Secret,
			KeyPrefix:   k.KeyPrefix,
			Permissions: k.Permissions,
			RateLimit:   k.RateLimit,
			ExpiresAt:   k.ExpiresAt,
			CreatedAt:   k.CreatedAt,
		},
	})
}

// DeactivateAPIKey — DELETE /api-key?id=.
func (h *APIHandler) DeactivateAPIKey(w http.ResponseWriter, r *http.Request) {
	requester := middleware.RequesterFromContext(r.Context())

	keyID := strings.TrimSpace(r.URL.Query().Get("id"))
	if keyID == "" {
		apierrors.ValidationError(w, "Параметр id обязателен")
		return
	}
	if _, err := uuid.Parse(keyID); err != nil {
		apierrors.ValidationError(w, "Некорректный id ключа")
		return
	}

	if err := h.keys.Deactivate(r.Context(), requester.UserID, keyID, middleware.Meta(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "API-ключ деактивирован", apiKeyDeletedResponse{ID: keyID})
}
