package calibrator

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/bitloop/ipcow"
)

const (
	workerDuration  = 3 * time.Second
	samplerDuration = 4 * time.Second
	sampleInterval  = 50 * time.Millisecond
)

// probeRequest is the fixed payload each synthetic client sends per
// round trip; the echo worker just bounces whatever it receives back.
var probeRequest = []byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")

// runBenchmark spawns workers goroutines, each hosting a loopback echo
// listener plus a client loop dialing it for ~3s, while a concurrent
// sampler polls host CPU usage for ~4s. This generates the real CPU/
// scheduler pressure the search loop scores.
func runBenchmark(ctx context.Context, workers int, timeNow func() time.Time, logger ipcow.SLogger) (BenchmarkResult, error) {
	start := timeNow()

	benchCtx, cancel := context.WithTimeout(ctx, workerDuration)
	defer cancel()

	var totalRequests uint64
	var totalTasks uint64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runEchoWorker(benchCtx, &totalRequests, &totalTasks)
		}()
	}

	samples := sampleCPU(ctx, logger)
	wg.Wait()

	peak, avg, rolling := summarize(samples)

	return BenchmarkResult{
		PeakCPU:       peak,
		AverageCPU:    avg,
		RollingAvg:    rolling,
		TotalRequests: atomic.LoadUint64(&totalRequests),
		TotalTasks:    atomic.LoadUint64(&totalTasks),
		TotalThreads:  uint64(workers),
		WallTime:      timeNow().Sub(start),
	}, nil
}

// runEchoWorker hosts one loopback listener that echoes every connection's
// input back to it, and drives a client loop against that same listener
// until ctx is done.
func runEchoWorker(ctx context.Context, totalRequests, totalTasks *uint64) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddUint64(totalTasks, 1)
			go echoConn(conn)
		}
	}()

	addr := ln.Addr().String()
	var dialer net.Dialer

	for ctx.Err() == nil {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			continue
		}
		if _, err := conn.Write(probeRequest); err == nil {
			buf := make([]byte, 4096)
			conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			if n, err := conn.Read(buf); err == nil && n > 0 {
				atomic.AddUint64(totalRequests, 1)
			}
		}
		conn.Close()
	}
}

func echoConn(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// sampleCPU polls host CPU usage every sampleInterval for roughly
// samplerDuration, discarding NaN/non-positive samples. Any gopsutil
// failure (missing /proc, permission error) is logged and treated as a
// zero-sample tick rather than a panic.
func sampleCPU(ctx context.Context, logger ipcow.SLogger) []float64 {
	deadline := time.Now().Add(samplerDuration)
	var samples []float64

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		percents, err := cpu.PercentWithContext(ctx, sampleInterval, false)
		if err != nil {
			logger.Debug("calibrator: cpu sample failed", "err", err)
			continue
		}
		if len(percents) == 0 {
			continue
		}
		v := percents[0]
		if v > 0 && !isNaN(v) {
			samples = append(samples, v)
		}
	}
	return samples
}

func isNaN(v float64) bool {
	return v != v
}

// summarize computes the peak, simple average, and a rolling average over
// the last 10 samples, mirroring original_source's CpuTracker.
func summarize(samples []float64) (peak, avg, rolling float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}

	var sum float64
	for _, s := range samples {
		sum += s
		if s > peak {
			peak = s
		}
	}
	avg = sum / float64(len(samples))

	window := len(samples)
	if window > 10 {
		window = 10
	}
	var rollingSum float64
	for _, s := range samples[len(samples)-window:] {
		rollingSum += s
	}
	rolling = rollingSum / float64(window)

	return peak, avg, rolling
}
