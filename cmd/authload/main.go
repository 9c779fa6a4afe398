// Command authload measures refresh-token lookup and rotation throughput
// against the Redis token store.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type tokenState struct {
	accountID string
	secret    string
	mu        sync.Mutex
}

func main() {
	var (
		accounts    = flag.Int("accounts", 100000, "number of refresh tokens to seed, one per account")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (redeem + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, AUTH_REDIS_ADDRESS env or miniredis is used")
		prefix      = flag.String("prefix", "load:", "token key prefix")
		ttl         = flag.Duration("ttl", 24*time.Hour, "refresh token lifetime")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("AUTH_REDIS_ADDRESS")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	tokens := redisstore.NewRefreshTokens(client, redisstore.WithPrefix(*prefix))

	states := make([]tokenState, *accounts)
	fmt.Printf("seeding %d refresh tokens...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		accountID := fmt.Sprintf("acct-%d", i)
		secret, err := tokens.Issue(ctx, accountID, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].accountID = accountID
		states[i].secret = secret
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	redeemStats := runRedeemPhase(ctx, tokens, states, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, tokens, states, *ops, *concurrency, *ttl)

	fmt.Println("---- results ----")
	printStats("redeem", redeemStats)
	printStats("rotate", rotateStats)
}

// runPhase spreads ops calls of op over concurrency workers, each picking a
// random token.
func runPhase(states []tokenState, ops, concurrency int, seed int64, op func(*tokenState) error) phaseStats {
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
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				t0 := time.Now()
				err := op(state)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runRedeemPhase(ctx context.Context, tokens store.RefreshTokenStore, states []tokenState, ops, concurrency int) phaseStats {
	return runPhase(states, ops, concurrency, 7919, func(state *tokenState) error {
		state.mu.Lock()
		secret := state.secret
		state.mu.Unlock()

		_, err := tokens.Redeem(ctx, secret)
		return err
	})
}

func runRotatePhase(ctx context.Context, tokens store.RefreshTokenStore, states []tokenState, ops, concurrency int, ttl time.Duration) phaseStats {
	return runPhase(states, ops, concurrency, 6151, func(state *tokenState) error {
		// Rotation consumes the secret, so each token is rotated by one
		// worker at a time.
		state.mu.Lock()
		defer state.mu.Unlock()

		_, next, err := tokens.Rotate(ctx, state.secret, ttl)
		if err == nil {
			state.secret = next
		}
		return err
	})
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
	return samples[(len(samples)-1)*p/100]
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
