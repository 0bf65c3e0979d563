package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// userHZ is the kernel's jiffy rate for /proc stat fields. Linux has
// reported 100 through this interface since 2.6 regardless of the actual
// scheduler tick.
const userHZ = 100

const sampleInterval = 50 * time.Millisecond

// procSampler polls /proc/<pid> while the child runs: cumulative CPU
// jiffies from stat, peak resident set from status. The last successful
// sample before exit stands; rusage fills any gap afterwards.
type procSampler struct {
	pid  int
	done chan struct{}
	wg   sync.WaitGroup

	jiffies atomic.Int64
	vmhwmKB atomic.Int64
}

func newProcSampler(pid int) *procSampler {
	return &procSampler{pid: pid, done: make(chan struct{})}
}

func (s *procSampler) start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		for {
			s.sample()
			select {
			case <-ticker.C:
			case <-s.done:
				return
			}
		}
	}()
}

func (s *procSampler) stop() {
	close(s.done)
	s.wg.Wait()
}

func (s *procSampler) sample() {
	if raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", s.pid)); err == nil {
		if j, err := parseStatJiffies(raw); err == nil {
			s.jiffies.Store(j)
		}
	}
	if raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", s.pid)); err == nil {
		if kb, err := parseVmHWMKB(raw); err == nil {
			s.vmhwmKB.Store(kb)
		}
	}
}

func (s *procSampler) cpuMS() int64 {
	return s.jiffies.Load() * 1000 / userHZ
}

func (s *procSampler) maxRSSMB() int64 {
	return s.vmhwmKB.Load() >> 10
}

// parseStatJiffies returns utime+stime from a /proc/<pid>/stat line. The
// comm field is parenthesized and may itself contain spaces and parens, so
// fields are counted from after the last ')'.
func parseStatJiffies(raw []byte) (int64, error) {
	i := bytes.LastIndexByte(raw, ')')
	if i < 0 {
		return 0, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(string(raw[i+1:]))
	// fields[0] is state; utime and stime are the 14th and 15th fields of
	// the full line, i.e. indexes 11 and 12 here.
	if len(fields) < 13 {
		return 0, fmt.Errorf("truncated stat line")
	}
	utime, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad utime: %w", err)
	}
	stime, err := strconv.ParseInt(fields[12], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad stime: %w", err)
	}
	return utime + stime, nil
}

// parseVmHWMKB extracts the peak resident set ("VmHWM: 1234 kB") from a
// /proc/<pid>/status dump.
func parseVmHWMKB(raw []byte) (int64, error) {
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "VmHWM:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed VmHWM line")
		}
		return strconv.ParseInt(fields[1], 10, 64)
	}
	return 0, fmt.Errorf("no VmHWM line")
}
