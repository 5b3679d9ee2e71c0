package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/stocksync/internal/cache"
	"github.com/shaiso/stocksync/internal/domain"
)

// DefaultSuppressWindow — окно подавления повторов.
const DefaultSuppressWindow = 15 * time.Minute

// Fingerprint — отпечаток алерта: тип, источник, ресурс, товары, severity.
func Fingerprint(a *domain.Alert) string {
	ids := append([]string(nil), productIDs(a)...)
	sort.Strings(ids)

	parts := []string{
		a.Type,
		dataString(a, "source"),
		dataString(a, "resource_id"),
		strings.Join(ids, ","),
		string(a.Severity),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// suppressor пропускает первый алерт с отпечатком за окно.
type suppressor struct {
	store  cache.Store
	window time.Duration
}

// allow возвращает true, если алерт нужно отправить.
func (s *suppressor) allow(ctx context.Context, a *domain.Alert) (bool, error) {
	if s == nil || s.store == nil {
		return true, nil
	}
	return s.store.SetNX(ctx, cache.AlertSuppressionKey(Fingerprint(a)), []byte(a.ID.String()), s.window)
}
