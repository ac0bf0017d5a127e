package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/spacekayak/phoneauth/backend/local"
	"github.com/spacekayak/phoneauth/jwt"
	"github.com/spacekayak/phoneauth/sms"
)

func main() {
	var (
		ops         = flag.Int("ops", 50000, "phones per phase (send, then verify)")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "pac-load", "challenge key prefix")
		signed      = flag.Bool("grants", true, "issue signed grants on verify")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	var grants *jwt.Manager
	if *signed {
		m, err := jwt.NewManager(jwt.Config{
			TTL:           time.Hour,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte("loadtest-signing-key"),
			Issuer:        "phoneauth-loadtest",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "grant manager: %v\n", err)
			os.Exit(1)
		}
		grants = m
	}

	// Limits are off so every op exercises the challenge path.
	cfg := local.DefaultConfig()
	cfg.KeyPrefix = *prefix
	cfg.SendMaxPerWindow = 0
	cfg.SendMaxPerIP = 0
	cfg.ResendCooldown = 0
	cfg.VerifyMaxFailures = 0

	outbox := sms.NewDevOutbox(cfg.CodeTTL)
	backend, err := local.New(client, outbox, grants, local.WithConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend: %v\n", err)
		os.Exit(1)
	}

	sendStats := runPhase(*ops, *concurrency, func(i int) error {
		return backend.SendCode(ctx, phoneFor(i))
	})
	verifyStats := runPhase(*ops, *concurrency, func(i int) error {
		phone := phoneFor(i)
		msg, ok := outbox.Latest(phone)
		if !ok {
			return fmt.Errorf("no code for %s", phone)
		}
		_, err := backend.VerifyCode(ctx, phone, msg.Code)
		return err
	})

	fmt.Println("---- results ----")
	printStats("send", sendStats)
	printStats("verify", verifyStats)
}

// runPhase calls op once for every index in [0, ops) across concurrency
// workers.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// phoneFor maps an op index to a distinct Indian mobile number.
func phoneFor(i int) string {
	return fmt.Sprintf("+919%09d", i%1_000_000_000)
}
