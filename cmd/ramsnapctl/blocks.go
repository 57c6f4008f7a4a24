package main

import (
	"fmt"
	"strconv"
	"strings"
)

// blockSpec is a parsed --block flag: id=value[@pagesize]. The meaning of
// value depends on the command.
type blockSpec struct {
	ID       string
	Value    string
	PageSize int
}

// parseBlockSpec parses id=value[@pagesize]; pageSize applies when the
// suffix is absent.
func parseBlockSpec(s string, pageSize int) (blockSpec, error) {
	id, rest, ok := strings.Cut(s, "=")
	if !ok || id == "" || rest == "" {
		return blockSpec{}, fmt.Errorf("invalid block %q: want id=value[@pagesize]", s)
	}
	if len(id) > 255 {
		return blockSpec{}, fmt.Errorf("invalid block %q: id longer than 255 bytes", s)
	}
	spec := blockSpec{ID: id, Value: rest, PageSize: pageSize}
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		ps, err := parseSize(rest[i+1:])
		if err != nil {
			return blockSpec{}, fmt.Errorf("invalid block %q: page size: %w", s, err)
		}
		spec.Value = rest[:i]
		spec.PageSize = int(ps)
	}
	if spec.Value == "" {
		return blockSpec{}, fmt.Errorf("invalid block %q: empty value", s)
	}
	if spec.PageSize <= 0 {
		return blockSpec{}, fmt.Errorf("invalid block %q: page size must be positive", s)
	}
	return spec, nil
}

func parseBlockSpecs(specs []string, pageSize int) ([]blockSpec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --block is required")
	}
	out := make([]blockSpec, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		spec, err := parseBlockSpec(s, pageSize)
		if err != nil {
			return nil, err
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("block %q given twice", spec.ID)
		}
		seen[spec.ID] = true
		out = append(out, spec)
	}
	return out, nil
}

// parseSize parses a byte count with an optional binary K, M or G suffix.
func parseSize(s string) (int64, error) {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1 << 10
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1 << 20
	case strings.HasSuffix(s, "G"), strings.HasSuffix(s, "g"):
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > (1<<62)/mult {
		return 0, fmt.Errorf("size %s out of range", s)
	}
	return n * mult, nil
}
