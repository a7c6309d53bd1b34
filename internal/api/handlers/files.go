// files.go — обработчики файлов проекций: загрузка, выдача, история.
package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/neptunium/internal/api/errors"
	"github.com/bigkaa/neptunium/internal/api/middleware"
	"github.com/bigkaa/neptunium/internal/domain/model"
	"github.com/bigkaa/neptunium/internal/service"
)

// multipartMemory — часть multipart-формы, удерживаемая в памяти.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки и поля формы сверх размера файла.
const multipartOverhead = 1 << 20

type uploadRequest struct {
	Filename      string `json:"filename"`
	FileSize      int64  `json:"fileSize"`
	IsPublic      *bool  `json:"isPublic"`
	ExpiresInDays *int   `json:"expiresInDays"`
}

type uploadResponse struct {
	FileID    string `json:"fileId"`
	UploadURL string `json:"uploadUrl,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
	File      any    `json:"file"`
}

// UploadFile — POST /upload-file. JSON-запрос выдаёт pre-signed URL,
// multipart/form-data принимает содержимое файла в теле.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		h.uploadDirect(w, r)
		return
	}

	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	requester := middleware.RequesterFromContext(r.Context())
	res, err := h.files.CreateUpload(r.Context(), service.UploadInput{
		Filename:      req.Filename,
		FileSize:      req.FileSize,
		IsPublic:      req.IsPublic,
		ExpiresInDays: req.ExpiresInDays,
	}, requester, middleware.Meta(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Ссылка для загрузки создана", uploadResponse{
		FileID:    res.FileID,
		UploadURL: res.UploadURL,
		ExpiresIn: res.ExpiresIn,
		File:      fileView(res.File, !requester.IsAnonymous()),
	})
}

// uploadDirect принимает файл из поля "file" multipart-формы.
func (h *APIHandler) uploadDirect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.ValidationError(w, "Файл превышает допустимый размер")
			return
		}
		apierrors.ValidationError(w, "Некорректная multipart-форма")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно")
		return
	}
	defer file.Close()

	in := service.UploadInput{Filename: header.Filename}
	if v := strings.TrimSpace(r.FormValue("isPublic")); v != "" {
		isPublic, err := strconv.ParseBool(v)
		if err != nil {
			apierrors.ValidationError(w, "isPublic должен быть true или false")
			return
		}
		in.IsPublic = &isPublic
	}
	if v := strings.TrimSpace(r.FormValue("expiresInDays")); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			apierrors.ValidationError(w, "expiresInDays должен быть целым числом")
			return
		}
		in.ExpiresInDays = &days
	}

	// Содержимое читается с запасом в один байт: превышение лимита
	// отклоняется проверкой размера в сервисе.
	content, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		apierrors.ValidationError(w, "Не удалось прочитать файл")
		return
	}
	in.FileSize = int64(len(content))

	requester := middleware.RequesterFromContext(r.Context())
	f, err := h.files.UploadDirect(r.Context(), service.DirectUploadInput{
		UploadInput: in,
		Content:     bytes.NewReader(content),
	}, requester, middleware.Meta(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Файл загружен", uploadResponse{
		FileID: f.FileID,
		File:   fileView(f, !requester.IsAnonymous()),
	})
}

// projectionParams — параметры GET /projection.
type projectionParams struct {
	ID     string
	Action *string
}

type projectionInfoResponse struct {
	File any `json:"file"`
}

type projectionDownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
	ExpiresIn   int    `json:"expiresIn"`
	Filename    string `json:"filename"`
	FileSize    int64  `json:"fileSize"`
}

// GetProjection — GET /projection?id=&action=info|download.
func (h *APIHandler) GetProjection(w http.ResponseWriter, r *http.Request) {
	var params projectionParams
	if err := runtime.BindQueryParameter("form", true, true, "id", r.URL.Query(), &params.ID); err != nil {
		apierrors.ValidationError(w, "Параметр id обязателен")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "action", r.URL.Query(), &params.Action); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр action")
		return
	}
	action := service.ActionInfo
	if params.Action != nil && *params.Action != "" {
		action = *params.Action
	}

	requester := middleware.RequesterFromContext(r.Context())
	res, err := h.files.Projection(r.Context(), strings.TrimSpace(params.ID), action, requester, middleware.Meta(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if res.Download != nil {
		writeSuccess(w, http.StatusOK, "Ссылка для скачивания создана", projectionDownloadResponse{
			DownloadURL: res.Download.URL,
			ExpiresIn:   res.Download.ExpiresIn,
			Filename:    res.Download.Filename,
			FileSize:    res.Download.FileSize,
		})
		return
	}
	writeSuccess(w, http.StatusOK, "Сведения о файле", projectionInfoResponse{
		File: fileView(res.Info.File, res.Info.IsOwner),
	})
}

// historyParams — параметры GET /files-history.
type historyParams struct {
	Page      *int
	Limit     *int
	FileType  *string
	Search    *string
	SortBy    *string
	SortOrder *string
}

type historyPagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type historyStats struct {
	TotalFiles      int64            `json:"totalFiles"`
	TotalSize       int64            `json:"totalSize"`
	TotalDownloads  int64            `json:"totalDownloads"`
	FileTypes       map[string]int64 `json:"fileTypes"`
	AverageFileSize int64            `json:"averageFileSize"`
}

type historyFilters struct {
	FileType  string `json:"fileType,omitempty"`
	Search    string `json:"search,omitempty"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

type historyResponse struct {
	Files      []historyFileView `json:"files"`
	Pagination historyPagination `json:"pagination"`
	Stats      historyStats      `json:"stats"`
	Filters    historyFilters    `json:"filters"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// bindHistoryParams разбирает параметры истории; ошибка содержит имя параметра.
func bindHistoryParams(r *http.Request) (historyParams, error) {
	var p historyParams
	q := r.URL.Query()
	bindings := []struct {
		name string
		dest any
	}{
		{"page", &p.Page},
		{"limit", &p.Limit},
		{"fileType", &p.FileType},
		{"search", &p.Search},
		{"sortBy", &p.SortBy},
		{"sortOrder", &p.SortOrder},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return p, errors.New("некорректный параметр " + b.name)
		}
	}
	return p, nil
}

// FilesHistory — GET /files-history.
func (h *APIHandler) FilesHistory(w http.ResponseWriter, r *http.Request) {
	params, err := bindHistoryParams(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	requester := middleware.RequesterFromContext(r.Context())
	res, err := h.files.History(r.Context(), requester.UserID, service.HistoryQuery{
		Page:      deref(params.Page),
		Limit:     deref(params.Limit),
		FileType:  deref(params.FileType),
		Search:    deref(params.Search),
		SortBy:    deref(params.SortBy),
		SortOrder: deref(params.SortOrder),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "История загрузок", newHistoryResponse(res))
}

func newHistoryResponse(res *service.HistoryResult) historyResponse {
	files := make([]historyFileView, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, newHistoryFileView(f))
	}

	stats := res.Stats
	if stats == nil {
		stats = &model.FileStats{}
	}
	fileTypes := stats.FileTypes
	if fileTypes == nil {
		fileTypes = map[string]int64{}
	}
	var avg int64
	if stats.Total > 0 {
		avg = stats.TotalSize / stats.Total
	}

	return historyResponse{
		Files: files,
		Pagination: historyPagination{
			Page:       res.Query.Page,
			Limit:      res.Query.Limit,
			Total:      res.Total,
			TotalPages: res.TotalPages,
			HasNext:    res.HasNext(),
			HasPrev:    res.HasPrev(),
		},
		Stats: historyStats{
			TotalFiles:      stats.Total,
			TotalSize:       stats.TotalSize,
			TotalDownloads:  stats.TotalDownloads,
			FileTypes:       fileTypes,
			AverageFileSize: avg,
		},
		Filters: historyFilters{
			FileType:  res.Query.FileType,
			Search:    res.Query.Search,
			SortBy:    res.Query.SortBy,
			SortOrder: res.Query.SortOrder,
		},
	}
}

// DashboardStats — GET /dashboard-stats.
func (h *APIHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	requester := middleware.RequesterFromContext(r.Context())

	stats, err := h.dashboard.Stats(r.Context(), requester.UserID, middleware.Meta(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Статистика", stats)
}
