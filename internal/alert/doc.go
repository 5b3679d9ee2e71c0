// Package alert реализует Alert Manager.
//
// Алерт сначала сохраняется в центральное хранилище, затем доставляется
// в каналы по severity:
//
//	LOW, MEDIUM     → chat webhook
//	HIGH, CRITICAL  → chat webhook + email
//
// Каналы работают независимо: отказ одного не блокирует другой и не
// возвращается вызывающему Send. Повторяющийся алерт с тем же
// отпечатком (тип, источник, ресурс, товары, severity) подавляется
// в течение окна через cache.Store SetNX.
//
// С очередью notifications Send только сохраняет и ставит алерт
// в очередь; доставкой занимается Processor.
package alert
