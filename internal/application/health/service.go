package health

import (
	"context"
	"encoding/json"
	"runtime"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys for request stats, written by the HealthMarker middleware.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
	KeyLastReq   = "health:global:last_request"
	KeyErrorLog  = "health:global:error_log"
)

// AllKeys is every stats key, for resets.
var AllKeys = []string{KeyReqTotal, KeyReqErrors, KeyResTime, KeyResCount, KeyStartTime, KeyLastReq, KeyErrorLog}

// DBPinger is optional for health check. If nil, database is reported as disconnected.
type DBPinger interface {
	Ping() error
}

// QueueDepth reports pending transcription tasks.
type QueueDepth interface {
	Depth(ctx context.Context) (int64, error)
}

// BlobPinger checks that the audio store is reachable.
type BlobPinger interface {
	Ping(ctx context.Context) error
}

// Deps are the dependencies probed by CollectHealth. Nil fields are reported
// as disconnected.
type Deps struct {
	Redis   *redis.Client
	DB      DBPinger
	Queue   QueueDepth
	Storage BlobPinger
}

type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
	QueueDepth   *int64               `json:"queueDepth"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	AllocMB    int `json:"allocMb"`
	HeapUsedMB int `json:"heapUsedMb"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime interface{} `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// probe times fn and maps its result to connected/error.
func probe(fn func() error) DepStatus {
	start := time.Now()
	if err := fn(); err != nil {
		return DepStatus{Status: "error"}
	}
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: "connected", PingMs: &ms}
}

// CollectHealth gathers dependency status, request stats and runtime info.
// Status is "ok" only when the database, Redis and the audio store answer.
func CollectHealth(ctx context.Context, deps Deps) CollectResult {
	result := CollectResult{Dependencies: make(map[string]DepStatus)}
	disconnected := DepStatus{Status: "disconnected"}

	result.Dependencies["database"] = disconnected
	if deps.DB != nil {
		result.Dependencies["database"] = probe(deps.DB.Ping)
	}

	result.Dependencies["storage"] = disconnected
	if deps.Storage != nil {
		result.Dependencies["storage"] = probe(func() error { return deps.Storage.Ping(ctx) })
	}

	result.Dependencies["queue"] = disconnected
	if deps.Queue != nil {
		var depth int64
		result.Dependencies["queue"] = probe(func() error {
			var err error
			depth, err = deps.Queue.Depth(ctx)
			return err
		})
		if result.Dependencies["queue"].Status == "connected" {
			result.QueueDepth = &depth
		}
	}

	startTimeMs := time.Now().UnixMilli()
	result.Traffic = TrafficInfo{AvgResponseTime: 0, SuccessRate: "100"}
	result.Dependencies["redis"] = disconnected
	if deps.Redis != nil {
		result.Dependencies["redis"] = probe(func() error { return deps.Redis.Ping(ctx).Err() })
		if result.Dependencies["redis"].Status == "connected" {
			startTimeMs = readTraffic(ctx, deps.Redis, &result.Traffic, startTimeMs)
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Memory:        MemoryInfo{AllocMB: int(m.Alloc / 1024 / 1024), HeapUsedMB: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	result.Status = "ok"
	for _, name := range []string{"database", "redis", "storage"} {
		if result.Dependencies[name].Status != "connected" {
			result.Status = "issue"
		}
	}
	return result
}

// readTraffic fills stats from the counters and returns the recorded start
// time, initializing it on first use.
func readTraffic(ctx context.Context, rdb *redis.Client, stats *TrafficInfo, startTimeMs int64) int64 {
	totalReq, _ := rdb.Get(ctx, KeyReqTotal).Result()
	totalErr, _ := rdb.Get(ctx, KeyReqErrors).Result()
	totalTime, _ := rdb.Get(ctx, KeyResTime).Result()
	resCount, _ := rdb.Get(ctx, KeyResCount).Result()
	startTimeStr, _ := rdb.Get(ctx, KeyStartTime).Result()
	lastReqStr, _ := rdb.Get(ctx, KeyLastReq).Result()

	if startTimeStr != "" {
		if t, err := strconv.ParseInt(startTimeStr, 10, 64); err == nil {
			startTimeMs = t
		}
	} else {
		rdb.Set(ctx, KeyStartTime, startTimeMs, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(totalReq)
	stats.FailedCount, _ = strconv.Atoi(totalErr)
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(totalTime, 64)
	countSum, _ := strconv.Atoi(resCount)
	if countSum > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
	}
	if lastReqStr != "" {
		var lastReq map[string]interface{}
		_ = json.Unmarshal([]byte(lastReqStr), &lastReq)
		stats.LastRequest = lastReq
	}
	return startTimeMs
}

// ErrorEntry is one record in the 5xx error log.
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Status  int       `json:"status"`
	TraceID string    `json:"traceId,omitempty"`
	Message string    `json:"message"`
}

const errorLogSize = 100

// RecordError pushes e onto the capped error log.
func RecordError(ctx context.Context, rdb *redis.Client, e ErrorEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := rdb.TxPipeline()
	pipe.LPush(ctx, KeyErrorLog, b)
	pipe.LTrim(ctx, KeyErrorLog, 0, errorLogSize-1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentErrors returns up to n of the newest error log entries.
func RecentErrors(ctx context.Context, rdb *redis.Client, n int64) ([]ErrorEntry, error) {
	raw, err := rdb.LRange(ctx, KeyErrorLog, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ErrorEntry, 0, len(raw))
	for _, s := range raw {
		var e ErrorEntry
		if json.Unmarshal([]byte(s), &e) == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// Reset clears the stats and restarts the uptime clock.
func Reset(ctx context.Context, rdb *redis.Client, now time.Time) error {
	if err := rdb.Del(ctx, AllKeys...).Err(); err != nil {
		return err
	}
	return rdb.Set(ctx, KeyStartTime, strconv.FormatInt(now.UnixMilli(), 10), 0).Err()
}
