package cache

import "fmt"

const keyPrefix = "stocksync"

func StockKey(source, resourceID, productID string) string {
	return fmt.Sprintf("%s:stock:%s:%s:%s", keyPrefix, source, resourceID, productID)
}

func StockPattern(source, resourceID string) string {
	return fmt.Sprintf("%s:stock:%s:%s:*", keyPrefix, source, resourceID)
}

func CriticalStockKey(source, resourceID, productID string) string {
	return fmt.Sprintf("%s:stock:critical:%s:%s:%s", keyPrefix, source, resourceID, productID)
}

func CriticalStockPattern(source, resourceID string) string {
	return fmt.Sprintf("%s:stock:critical:%s:%s:*", keyPrefix, source, resourceID)
}

func ProductKey(source, resourceID, externalID string) string {
	return fmt.Sprintf("%s:product:%s:%s:%s", keyPrefix, source, resourceID, externalID)
}

func ProductPattern(source, resourceID string) string {
	return fmt.Sprintf("%s:product:%s:%s:*", keyPrefix, source, resourceID)
}

func SyncStatusKey(source, resourceID string) string {
	return fmt.Sprintf("%s:sync_status:%s:%s", keyPrefix, source, resourceID)
}

func LockKey(resourceKey string) string {
	return fmt.Sprintf("%s:lock:%s", keyPrefix, resourceKey)
}

func AlertSuppressionKey(fingerprint string) string {
	return fmt.Sprintf("%s:alert:suppress:%s", keyPrefix, fingerprint)
}
