package queue

import "errors"

var (
	// ErrUnknownQueue — очередь не определена.
	ErrUnknownQueue = errors.New("unknown queue")

	// ErrProcessorRegistered — обработчик для очереди уже зарегистрирован.
	ErrProcessorRegistered = errors.New("processor already registered")

	// ErrNoProcessor — очередь запускается без обработчика.
	ErrNoProcessor = errors.New("no processor registered")

	// ErrStarted — очереди уже запущены.
	ErrStarted = errors.New("queues already started")
)
