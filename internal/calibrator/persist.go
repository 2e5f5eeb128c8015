package calibrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by os.Rename, so concurrent readers never observe a
// partially written file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".metrics-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// parseResultLine parses the comma-separated key=value line written by
// [persist].
func parseResultLine(line string) (Result, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) == 0 {
		return Result{}, fmt.Errorf("empty metrics line")
	}

	values := make(map[string]string, len(fields))
	for _, field := range fields {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return Result{}, fmt.Errorf("malformed field %q", field)
		}
		values[kv[0]] = kv[1]
	}

	var result Result
	var err error

	if result.MaxCPUUsage, err = strconv.ParseFloat(values["max_cpu_usage"], 64); err != nil {
		return Result{}, err
	}
	optimal, err := strconv.Atoi(values["optimal_threads"])
	if err != nil {
		return Result{}, err
	}
	result.OptimalThreads = optimal

	totalWorkers, err := strconv.Atoi(values["total_workers"])
	if err != nil {
		return Result{}, err
	}
	result.TotalWorkers = totalWorkers

	if result.MemoryUsageMB, err = strconv.ParseFloat(values["memory_usage_mb"], 64); err != nil {
		return Result{}, err
	}

	totalTasks, err := strconv.ParseUint(values["total_tasks"], 10, 64)
	if err != nil {
		return Result{}, err
	}
	result.TotalTasks = totalTasks

	totalThreads, err := strconv.ParseUint(values["total_threads"], 10, 64)
	if err != nil {
		return Result{}, err
	}
	result.TotalThreads = totalThreads

	return result, nil
}
