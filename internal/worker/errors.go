package worker

import "errors"

var (
	// ErrLockUnavailable — ресурс синхронизирует другой воркер.
	// Задание возвращается в очередь на повтор по её политике.
	ErrLockUnavailable = errors.New("resource lock unavailable")

	// ErrNoUpstream — для источника не настроен integration client.
	ErrNoUpstream = errors.New("no upstream configured for source")

	// ErrUnknownJobType — нет processor'а для типа задания.
	ErrUnknownJobType = errors.New("unknown job type")
)
