// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// byteRange is one satisfiable range, end inclusive.
type byteRange struct {
	start, end int64
}

func (b byteRange) length() int64 { return b.end - b.start + 1 }

func (b byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.start, b.end, size)
}

// parseRange interprets a Range header against a file of size bytes. It
// returns nil for a full response: no header, another unit, a malformed
// value or several ranges. An unsatisfiable single range returns
// errRangeNotSatisfiable.
func parseRange(header string, size int64) (*byteRange, error) {
	rangeSet, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(rangeSet, ",") {
		return nil, nil
	}
	first, last, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return nil, nil
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 || size == 0 {
			return nil, errRangeNotSatisfiable
		}
		n = min(n, size)
		return &byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return nil, nil
		}
		end = min(end, size-1)
	}
	if start >= size {
		return nil, errRangeNotSatisfiable
	}
	return &byteRange{start: start, end: end}, nil
}
