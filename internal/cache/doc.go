// Package cache — кэш-слой синхронизации.
//
// Store — абстракция хранилища ключ/значение с TTL. Реализации:
//   - RedisStore — go-redis, общий для всех процессов
//   - MemoryStore — in-process, для тестов и локального запуска
//
// Поверх Store:
//   - Cache — JSON-кодирование, метрики hit/miss, best-effort чтение
//   - StockCache — остатки + shadow namespace для критичных позиций
//   - ProductCache — товары с per-process LRU near-cache
//   - SyncStatusCache — короткоживущая копия SyncStatus
//
// Кэш не является источником истины: у каждой записи ограниченный TTL,
// система записи — центральная БД.
package cache
