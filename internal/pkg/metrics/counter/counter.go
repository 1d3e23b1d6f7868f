package counter

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/liquidsnips/liquidsnips/internal/pkg/cache"
	"github.com/liquidsnips/liquidsnips/internal/pkg/database"
)

const snippetViewsKey = "snippet:counters:views"

// AddSnippetView increments the pending view counter for a snippet in Redis.
// Views are batched and flushed to the database periodically so catalog
// reads never cost a write.
func AddSnippetView(snippetID string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, snippetViewsKey, snippetID, 1).Err()
}

// FlushAll flushes pending snippet view counters to the database.
func FlushAll() error {
	return flushHashToTable(snippetViewsKey, "snippets", "view_count")
}

// flushHashToTable drains a Redis hash atomically and applies batched
// increments to the target table. Uses RENAME to a temporary key for atomic
// drain without losing in-flight increments.
func flushHashToTable(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	counts, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		_ = rdb.Del(ctx, tmpKey).Err()
		return nil
	}

	// Deterministic order keeps deadlock risk down when rows overlap with
	// concurrent flushes.
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	db := database.GetDB()
	for _, id := range ids {
		increment := counts[id]
		stmt := fmt.Sprintf("UPDATE %s SET %s = %s + ? WHERE id = ?", table, column, column)
		if err := db.Exec(stmt, increment, id).Error; err != nil {
			return err
		}
	}

	return rdb.Del(ctx, tmpKey).Err()
}

// StartFlusher flushes counters on the given interval until the process
// exits.
func StartFlusher(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := FlushAll(); err != nil {
				log.Printf("counter flush failed: %v", err)
			}
		}
	}()
}
