// Package scheduler запускает периодические задачи синхронизации и обслуживания.
//
// Scheduler держит набор именованных таймеров поверх robfig/cron.
// Каждый таймер запускается и останавливается независимо, Trigger
// выполняет его вне расписания.
//
// Структура:
//   - scheduler.go   — Scheduler и Timer
//   - cron.go        — разбор расписаний
//   - sync.go        — таймеры постановки заданий синхронизации
//   - maintenance.go — health checks, прогрев кэша, очистка статусов, мониторинг очередей
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{Logger: logger})
//	for _, t := range scheduler.SyncTimers(submitter, resources, scheduler.DefaultSyncSpecs()) {
//	    sched.Add(t)
//	}
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Таймер не запускается повторно, пока предыдущий запуск не завершился.
package scheduler
