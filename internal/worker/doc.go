// Package worker выполняет задания синхронизации ERP/POS.
//
// # Обзор
//
// Worker — обработчик очередей stock-sync и critical-stock. Для каждого
// задания он:
//
//   - захватывает lock ресурса (source:resource_id)
//   - переводит SyncStatus в SYNCING
//   - забирает данные из upstream через integration client
//   - пишет их в центральное хранилище пакетным upsert'ом
//   - обновляет кэш остатков и каталога
//   - оценивает пороги остатков и поднимает алерты
//   - фиксирует SyncStatus и запись журнала интеграций
//   - освобождает lock
//
// Ошибка задания возвращается очереди, которая применяет свою политику
// повторов. Если lock занят, задание не выполняется и возвращает
// ErrLockUnavailable.
//
// # Типы заданий
//
// Processor регистрируется в Registry по типу задания:
//
//	product_sync      — постраничная загрузка каталога
//	full_sync         — каталог и затем остатки
//	customer_sync     — постраничная загрузка клиентов (ERP)
//	stock_sync        — остатки всех известных товаров
//	incremental_sync  — остатки, изменившиеся с последней успешной синхронизации
//	critical_stock    — повторная проверка товаров с нулевым остатком
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Upstreams: map[domain.Source]worker.Upstream{
//	        domain.SourcePOS: posClient,
//	        domain.SourceERP: erpClient,
//	    },
//	    Store:     store,
//	    Locker:    locker,
//	    Alerts:    alerts,
//	    Submitter: worker.NewSubmitter(queues),
//	    Logger:    logger,
//	})
//
//	if err := w.Register(queues); err != nil {
//	    log.Fatal(err)
//	}
package worker
