package client

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange is an inclusive 1-based page interval.
type PageRange struct {
	From int
	To   int
}

// ParsePageSpec parses a page selection such as "1-3,5,7-9". An empty spec
// selects every page and yields nil.
func ParsePageSpec(spec string) ([]PageRange, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var out []PageRange
	for _, raw := range strings.Split(spec, ",") {
		part := strings.TrimSpace(raw)
		if part == "" {
			return nil, fmt.Errorf("empty entry in %q", spec)
		}
		from, to, isRange := strings.Cut(part, "-")
		a, err := parsePage(from)
		if err != nil {
			return nil, err
		}
		b := a
		if isRange {
			if b, err = parsePage(to); err != nil {
				return nil, err
			}
			if a > b {
				return nil, fmt.Errorf("descending range %q", part)
			}
		}
		out = append(out, PageRange{From: a, To: b})
	}
	return out, nil
}

// ParsePageList parses a comma separated list of single page numbers.
func ParsePageList(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	var out []int
	for _, raw := range strings.Split(spec, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := parsePage(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("page number must be positive, got %d", n)
	}
	return n, nil
}

// ParseClock parses "ss", "mm:ss" or "hh:mm:ss" into whole seconds. Bad
// input is a *ValidationError.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, validation("time", "empty time")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, validation("time", fmt.Sprintf("invalid time %q", s))
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, validation("time", fmt.Sprintf("invalid time %q", s))
		}
		if i > 0 && n >= 60 {
			return 0, validation("time", fmt.Sprintf("invalid time %q: field out of range", s))
		}
		total = total*60 + n
	}
	return total, nil
}
