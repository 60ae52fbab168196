package sim

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Record file format, one line per entry:
//
//	-1,<total recorded samples>
//	0,<samples with size > 0>
//	1,<samples with size > 1>
//	...
//
// The -1 header carries the sample count so tail counts can be turned
// back into probabilities without the raw samples.

// WriteRecordFile writes a distribution's tail counts to path.
func WriteRecordFile(path string, d Distribution) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "-1,%d\n", d.Total)
	for r := 0; r <= d.MaxStash; r++ {
		fmt.Fprintf(w, "%d,%d\n", r, d.Tail[r])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ReadRecordFile parses a record file back into a distribution, so a
// recorded run can be re-plotted without re-simulating.
func ReadRecordFile(path string) (Distribution, error) {
	f, err := os.Open(path)
	if err != nil {
		return Distribution{}, err
	}
	defer f.Close()

	var (
		d        Distribution
		hasTotal bool
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		r, count, err := parseRecordLine(path, line)
		if err != nil {
			return Distribution{}, err
		}
		if r == -1 {
			d.Total = count
			hasTotal = true
			continue
		}
		if r != len(d.Tail) {
			return Distribution{}, fmt.Errorf("%w: %s: thresholds out of order at %q", ErrBadRecordFile, path, line)
		}
		d.Tail = append(d.Tail, count)
	}
	if err := sc.Err(); err != nil {
		return Distribution{}, err
	}
	if !hasTotal {
		return Distribution{}, fmt.Errorf("%w: %s: missing -1,<total> header", ErrBadRecordFile, path)
	}
	if len(d.Tail) == 0 {
		d.Tail = []int{0}
	}
	d.MaxStash = len(d.Tail) - 1
	return d, nil
}

func parseRecordLine(path, line string) (r, count int, err error) {
	lhs, rhs, ok := strings.Cut(line, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s: line %q", ErrBadRecordFile, path, line)
	}
	r, err = strconv.Atoi(strings.TrimSpace(lhs))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: line %q", ErrBadRecordFile, path, line)
	}
	count, err = strconv.Atoi(strings.TrimSpace(rhs))
	if err != nil || count < 0 {
		return 0, 0, fmt.Errorf("%w: %s: line %q", ErrBadRecordFile, path, line)
	}
	return r, count, nil
}
