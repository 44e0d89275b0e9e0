package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	IonTypes = 2
	Statuses = 11
)

// Stats counts terminated ions per ion type (row) and finish status (column).
type Stats [IonTypes][Statuses]int

func (s *Stats) Inc(ionType, status int) {
	s[ionType][status]++
}

// Add sums o into s element-wise.
func (s *Stats) Add(o *Stats) {
	for i := range s {
		for j := range s[i] {
			s[i][j] += o[i][j]
		}
	}
}

func (s *Stats) RowTotal(ionType int) (n int) {
	for _, v := range s[ionType] {
		n += v
	}
	return
}

func (s *Stats) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for i := range s {
		for _, v := range s[i] {
			fmt.Fprintf(&sb, "%9d", v)
		}
		sb.WriteByte('\n')
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func ReadStats(r io.Reader) (*Stats, error) {
	var s Stats
	sc := bufio.NewScanner(r)
	row := 0
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if row >= IonTypes || len(fields) != Statuses {
			return nil, fmt.Errorf("output: malformed statistics block at row %d", row)
		}
		for j, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("output: %w", err)
			}
			s[row][j] = v
		}
		row++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if row != IonTypes {
		return nil, fmt.Errorf("output: statistics block has %d rows", row)
	}
	return &s, nil
}
