// allocator.go — выделение уникального 6-значного ID файла.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/neptunium/internal/domain/ident"
	"github.com/bigkaa/neptunium/internal/repository"
)

// MaxAllocationAttempts — число попыток подобрать свободный ID.
const MaxAllocationAttempts = 10

var idCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "np_file_id_collisions_total",
	Help: "Количество коллизий при выделении ID файла.",
})

// FileIDChecker проверяет занятость file_id.
type FileIDChecker interface {
	ExistsByFileID(ctx context.Context, fileID string) (bool, error)
}

// FileIDAllocator подбирает свободный ID и атомарно занимает его вставкой.
// Уникальный индекс БД — окончательный арбитр: ErrConflict вставки
// считается коллизией и ведёт к новой попытке.
type FileIDAllocator struct {
	files       FileIDChecker
	generate    func() (string, error)
	maxAttempts int
}

// NewFileIDAllocator создаёт аллокатор с генератором ident.FileID.
func NewFileIDAllocator(files FileIDChecker) *FileIDAllocator {
	return &FileIDAllocator{files: files, generate: ident.FileID, maxAttempts: MaxAllocationAttempts}
}

// Allocate подбирает ID и вызывает insert с ним. Возвращает занятый ID.
// После maxAttempts коллизий — ErrIDSpaceExhausted.
func (a *FileIDAllocator) Allocate(ctx context.Context, insert func(id string) error) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		id, err := a.generate()
		if err != nil {
			return "", fmt.Errorf("ошибка генерации ID: %w", err)
		}

		exists, err := a.files.ExistsByFileID(ctx, id)
		if err != nil {
			return "", dependencyError("проверка file_id", err)
		}
		if exists {
			idCollisionsTotal.Inc()
			continue
		}

		err = insert(id)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, repository.ErrConflict) {
			idCollisionsTotal.Inc()
			continue
		}
		return "", err
	}
	return "", ErrIDSpaceExhausted
}
