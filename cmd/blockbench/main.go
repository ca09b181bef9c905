// blockbench measures block anchor resolution latency through the cache
// layers: blocks table only, and redis in front of the table. The explorer is
// simulated with a fixed delay so runs are repeatable offline.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/oracle"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/pkg/database"
)

// slowExplorer 模拟区块浏览器延迟
type slowExplorer struct{ delay time.Duration }

func (s slowExplorer) GetBlock(ctx context.Context, hash string) (*oracle.BlockInfo, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &oracle.BlockInfo{Hash: hash, Time: time.Now().Unix()}, nil
}

func main() {
	ctx := context.Background()

	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	defer func() { _ = database.Close(db) }()

	blockCount := envInt("BLOCKS", 500)
	requests := envInt("REQUESTS", 20000)
	delay := time.Duration(envInt("EXPLORER_DELAY_MS", 150)) * time.Millisecond

	hashes := makeHashes(blockCount)
	reqs := makeRequests(hashes, requests)
	explorer := slowExplorer{delay: delay}

	fmt.Printf("Block anchor lookups: %d requests over %d blocks, explorer delay %v\n", len(reqs), len(hashes), delay)

	resetBlocks(db)
	tableOnly := runScenario(ctx, oracle.NewCachedBlocks(repository.NewBlockRepository(db), nil, explorer, zap.NewNop(), nil), reqs)
	report("blocks table", tableOnly, nil)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = cfg.Redis.Addr
	}
	if redisAddr == "" {
		fmt.Println("REDIS_ADDR not set, skipping redis scenario")
		return
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = client.Close() }()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("connect redis at %s: %v", redisAddr, err))
	}
	mustDo(client.FlushDB(ctx).Err())
	resetBlocks(db)
	withRedis := runScenario(ctx, oracle.NewCachedBlocks(repository.NewBlockRepository(db), client, explorer, zap.NewNop(), nil), reqs)
	report("redis + table", withRedis, client)
}

type scenarioResult struct {
	durations []time.Duration
	counters  oracle.BlockCounters
}

func runScenario(ctx context.Context, blocks *oracle.CachedBlocks, reqs []string) scenarioResult {
	out := make([]time.Duration, 0, len(reqs))
	for _, h := range reqs {
		start := time.Now()
		if _, err := blocks.GetOrFetch(ctx, h); err != nil {
			panic(err)
		}
		out = append(out, time.Since(start))
	}
	return scenarioResult{durations: out, counters: blocks.Counters()}
}

func report(name string, r scenarioResult, client *redis.Client) {
	mem := ""
	if client != nil {
		if info, err := client.Info(context.Background(), "memory").Result(); err == nil {
			mem = " mem=" + formatBytes(parseRedisMemory(info))
		}
	}
	fmt.Printf("%-14s avg=%v p95=%v p99=%v oracle=%d table=%d redis=%d%s\n",
		name, avg(r.durations), pct(r.durations, 0.95), pct(r.durations, 0.99),
		r.counters.OracleCalls, r.counters.StoreHits, r.counters.RedisHits, mem)
}

func resetBlocks(db *gorm.DB) {
	mustDo(db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Block{}).Error)
}

func makeHashes(n int) []string {
	out := make([]string, n)
	for i := range out {
		sum := sha256.Sum256([]byte("block-" + strconv.Itoa(i)))
		out[i] = hex.EncodeToString(sum[:])
	}
	return out
}

// makeRequests 偏向最近区块：大多数提交锚定在最新的几个区块上
func makeRequests(hashes []string, n int) []string {
	rnd := rand.New(rand.NewSource(42))
	out := make([]string, n)
	recent := max(len(hashes)/20, 1)
	for i := range out {
		if rnd.Float64() < 0.8 {
			out[i] = hashes[len(hashes)-1-rnd.Intn(recent)]
			continue
		}
		out[i] = hashes[rnd.Intn(len(hashes))]
	}
	return out
}

func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
