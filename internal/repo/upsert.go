package repo

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// defaultBatchSize — строк в одном INSERT, если не задано.
const defaultBatchSize = 100

// Row — строка upsert'а: колонка → значение.
type Row map[string]any

// UpsertResult — итог пакетной записи.
type UpsertResult struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
}

// Add суммирует результаты.
func (r *UpsertResult) Add(other UpsertResult) {
	r.SuccessCount += other.SuccessCount
	r.FailedCount += other.FailedCount
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// BatchUpsert пишет rows пачками по batchSize с ON CONFLICT (conflictKeys) DO UPDATE.
//
// Колонки берутся из первой строки. Пачка пишется одним INSERT; если он
// падает, строки пачки пишутся по одной, чтобы одна плохая строка не
// теряла остальные. Ошибка возвращается только для некорректных
// аргументов, сбои отдельных строк попадают в FailedCount.
//
// Дубли по conflictKeys внутри пачки схлопываются (побеждает последняя
// строка); схлопнутые строки получают исход победившей, так что
// SuccessCount + FailedCount == len(rows).
func (s *Store) BatchUpsert(ctx context.Context, table string, rows []Row, conflictKeys []string, batchSize int) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	columns := columnsOf(rows[0])
	if err := validateIdentifiers(table, columns, conflictKeys); err != nil {
		return res, err
	}

	valid := make([]Row, 0, len(rows))
	for _, row := range rows {
		if !hasColumns(row, columns) {
			res.FailedCount++
			continue
		}
		valid = append(valid, row)
	}
	if res.FailedCount > 0 {
		s.logger.Warn("upsert rows skipped", "table", table, "count", res.FailedCount, "error", ErrInvalidRow)
	}

	for start := 0; start < len(valid); start += batchSize {
		end := min(start+batchSize, len(valid))
		batch, weights := dedupe(valid[start:end], conflictKeys)

		query, args := buildUpsert(table, columns, conflictKeys, batch)
		_, err := s.pool.Exec(ctx, query, args...)
		if err == nil {
			res.SuccessCount += end - start
			continue
		}
		if ctx.Err() != nil {
			res.FailedCount += len(valid) - start
			return res, ctx.Err()
		}

		s.logger.Warn("batch upsert failed, writing rows one by one",
			"table", table,
			"rows", len(batch),
			"error", err,
		)

		for i, row := range batch {
			query, args := buildUpsert(table, columns, conflictKeys, []Row{row})
			if _, err := s.pool.Exec(ctx, query, args...); err != nil {
				res.FailedCount += weights[i]
				s.logger.Error("row upsert failed", "table", table, "error", err)
				continue
			}
			res.SuccessCount += weights[i]
		}
	}

	return res, nil
}

// buildUpsert строит INSERT ... ON CONFLICT для rows.
func buildUpsert(table string, columns, conflictKeys []string, rows []Row) (string, []any) {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(pgx.Identifier{table}.Sanitize())
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, c := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, row[c])
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(args)))
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (")
	keys := make(map[string]bool, len(conflictKeys))
	for i, k := range conflictKeys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{k}.Sanitize())
		keys[k] = true
	}
	b.WriteString(")")

	var updates []string
	for _, c := range columns {
		if keys[c] {
			continue
		}
		id := pgx.Identifier{c}.Sanitize()
		updates = append(updates, id+" = EXCLUDED."+id)
	}
	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		b.WriteString(strings.Join(updates, ", "))
	}

	return b.String(), args
}

// dedupe оставляет последнюю строку для каждого ключа: один INSERT
// не может обновить строку дважды.
// dedupe схлопывает строки с одинаковыми conflictKeys: ON CONFLICT
// не допускает двух изменений одной строки в одном INSERT. weights[i] —
// сколько входных строк представляет out[i].
func dedupe(rows []Row, conflictKeys []string) (out []Row, weights []int) {
	index := make(map[string]int, len(rows))
	out = make([]Row, 0, len(rows))
	weights = make([]int, 0, len(rows))

	for _, row := range rows {
		parts := make([]string, len(conflictKeys))
		for i, k := range conflictKeys {
			parts[i] = fmt.Sprint(row[k])
		}
		key := strings.Join(parts, "\x00")

		if i, ok := index[key]; ok {
			out[i] = row
			weights[i]++
			continue
		}
		index[key] = len(out)
		out = append(out, row)
		weights = append(weights, 1)
	}
	return out, weights
}

func columnsOf(row Row) []string {
	columns := make([]string, 0, len(row))
	for c := range row {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

func hasColumns(row Row, columns []string) bool {
	if len(row) != len(columns) {
		return false
	}
	for _, c := range columns {
		if _, ok := row[c]; !ok {
			return false
		}
	}
	return true
}

func validateIdentifiers(table string, columns, conflictKeys []string) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	if len(conflictKeys) == 0 {
		return fmt.Errorf("%w: no conflict keys", ErrInvalidIdentifier)
	}

	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !identRe.MatchString(c) {
			return fmt.Errorf("%w: column %q", ErrInvalidIdentifier, c)
		}
		known[c] = true
	}
	for _, k := range conflictKeys {
		if !known[k] {
			return fmt.Errorf("%w: conflict key %q not in columns", ErrInvalidIdentifier, k)
		}
	}
	return nil
}
