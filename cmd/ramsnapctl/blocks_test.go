package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBlockSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    blockSpec
		wantErr bool
	}{
		{in: "pc.ram=ram.bin", want: blockSpec{ID: "pc.ram", Value: "ram.bin", PageSize: 4096}},
		{in: "vram=vram.bin@16K", want: blockSpec{ID: "vram", Value: "vram.bin", PageSize: 16384}},
		{in: "a=out@x.bin:1M@8192", want: blockSpec{ID: "a", Value: "out@x.bin:1M", PageSize: 8192}},
		{in: "a=b=c", want: blockSpec{ID: "a", Value: "b=c", PageSize: 4096}},
		{in: "noequals", wantErr: true},
		{in: "=ram.bin", wantErr: true},
		{in: "a=", wantErr: true},
		{in: "a=@4096", wantErr: true},
		{in: "a=b@zero", wantErr: true},
		{in: "a=b@0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBlockSpec(tt.in, 4096)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseBlockSpecsRejectsDuplicates(t *testing.T) {
	_, err := parseBlockSpecs([]string{"a=x", "b=y", "a=z"}, 4096)
	require.Error(t, err)

	_, err = parseBlockSpecs(nil, 4096)
	require.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"4096": 4096,
		"4K":   4 << 10,
		"16k":  16 << 10,
		"128M": 128 << 20,
		"2G":   2 << 30,
	}
	for in, want := range tests {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "K", "-1", "0", "1.5M", "12T"} {
		_, err := parseSize(in)
		require.Error(t, err, in)
	}
}
