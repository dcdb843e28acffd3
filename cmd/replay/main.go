// Replay reads the compressed per-tick streaming logs back and verifies
// the budget invariants offline: committed loads/unloads never exceed the
// caps recorded for that tick.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"gladekeep.gg/internal/sim/world"
)

func main() {
	var (
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		fromTick  = flag.Uint64("from_tick", 0, "start at tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	files, err := filepath.Glob(filepath.Join(*eventsDir, "events-*.jsonl.zst"))
	if err != nil || len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no event logs found in", *eventsDir)
		os.Exit(1)
	}
	sort.Strings(files)

	var (
		ticks        int
		loads        int
		unloads      int
		cancels      int
		loadFails    int
		unloadFails  int
		maxLoads     int
		maxUnloads   int
		capViolation int
		lastResident int
	)

	for _, path := range files {
		if err := readLog(path, func(e world.TickLogEntry) {
			if *fromTick > 0 && e.Tick < *fromTick {
				return
			}
			if *toTick > 0 && e.Tick > *toTick {
				return
			}
			ticks++
			loads += e.Loads
			unloads += e.Unloads
			cancels += e.Cancels
			loadFails += e.LoadFailures
			unloadFails += e.UnloadFailures
			if e.Loads > maxLoads {
				maxLoads = e.Loads
			}
			if e.Unloads > maxUnloads {
				maxUnloads = e.Unloads
			}
			if e.Loads > e.LoadCapPerFrame || e.Unloads > e.UnloadCapPerFrame {
				capViolation++
				fmt.Printf("tick %d: budget exceeded (loads %d/%d, unloads %d/%d)\n",
					e.Tick, e.Loads, e.LoadCapPerFrame, e.Unloads, e.UnloadCapPerFrame)
			}
			lastResident = e.Resident
		}); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}

	fmt.Printf("ticks=%d loads=%d unloads=%d cancels=%d load_failures=%d unload_failures=%d\n",
		ticks, loads, unloads, cancels, loadFails, unloadFails)
	fmt.Printf("max_loads_per_tick=%d max_unloads_per_tick=%d final_resident=%d\n",
		maxLoads, maxUnloads, lastResident)
	if capViolation > 0 {
		fmt.Printf("BUDGET VIOLATIONS: %d ticks\n", capViolation)
		os.Exit(1)
	}
	fmt.Println("budgets respected on every tick")
}

func readLog(path string, fn func(world.TickLogEntry)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e world.TickLogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("bad entry: %w", err)
		}
		fn(e)
	}
	return sc.Err()
}
