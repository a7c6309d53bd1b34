// file_cache.go — LRU-кэш метаданных файлов проекций с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/neptunium/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	fileCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "np_file_cache_hits_total",
		Help: "Общее количество попаданий в кэш метаданных файлов.",
	})
	fileCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "np_file_cache_misses_total",
		Help: "Общее количество промахов кэша метаданных файлов.",
	})
)

// FileCache — per-instance кэш записей projection_files по file_id.
// Записи из кэша не изменяются: при обновлении счётчика запись удаляется.
type FileCache struct {
	cache *expirable.LRU[string, *model.ProjectionFile]
}

// NewFileCache создаёт кэш на maxSize записей с временем жизни ttl.
func NewFileCache(maxSize int, ttl time.Duration) *FileCache {
	return &FileCache{cache: expirable.NewLRU[string, *model.ProjectionFile](maxSize, nil, ttl)}
}

// Get возвращает запись по fileID.
func (c *FileCache) Get(fileID string) (*model.ProjectionFile, bool) {
	val, ok := c.cache.Get(fileID)
	if ok {
		fileCacheHitsTotal.Inc()
		return val, true
	}
	fileCacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись.
func (c *FileCache) Set(fileID string, f *model.ProjectionFile) {
	c.cache.Add(fileID, f)
}

// Delete инвалидирует запись.
func (c *FileCache) Delete(fileID string) {
	c.cache.Remove(fileID)
}

// Len возвращает текущее число записей.
func (c *FileCache) Len() int {
	return c.cache.Len()
}
