package scheduler

import "errors"

var (
	// ErrTimerExists — таймер с таким именем уже добавлен.
	ErrTimerExists = errors.New("timer already exists")

	// ErrTimerNotFound — таймер не найден.
	ErrTimerNotFound = errors.New("timer not found")

	// ErrTimerBusy — предыдущий запуск таймера ещё выполняется.
	ErrTimerBusy = errors.New("timer is still running")
)
