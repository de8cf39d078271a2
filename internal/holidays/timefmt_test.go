package holidays

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeTime_AllValidValuesIdempotent(t *testing.T) {
	t.Parallel()
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			in := fmt.Sprintf("%02d:%02d", h, m)
			got, err := NormalizeTime(in)
			if err != nil {
				t.Fatalf("NormalizeTime(%q): %v", in, err)
			}
			if got != in {
				t.Fatalf("NormalizeTime(%q) = %q", in, got)
			}
			again, err := NormalizeTime(got)
			if err != nil || again != got {
				t.Fatalf("not idempotent for %q: %q, %v", in, again, err)
			}
		}
	}
}

func TestNormalizeTime_PadsShortFields(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"8:5":     "08:05",
		" 08:30 ": "08:30",
		"0:00":    "00:00",
		"23:9":    "23:09",
	}
	for in, want := range cases {
		got, err := NormalizeTime(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeTime(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestNormalizeTime_Malformed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in  string
		msg string
	}{
		{"", textTimeFormat},
		{"   ", textTimeFormat},
		{"0830", textTimeFormat},
		{"08-30", textTimeFormat},
		{"08:30:00", textTimeFormat},
		{"ab:cd", textTimeFormat},
		{"+8:30", textTimeFormat},
		{"08:", textTimeFormat},
		{"123:00", textTimeFormat},
		{"24:00", textTimeRange},
		{"23:60", textTimeRange},
		{"99:99", textTimeRange},
	}
	for _, tc := range cases {
		_, err := NormalizeTime(tc.in)
		if err == nil {
			t.Fatalf("NormalizeTime(%q) succeeded", tc.in)
		}
		if !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("NormalizeTime(%q) error %v does not match ErrInvalidTime", tc.in, err)
		}
		if err.Error() != tc.msg {
			t.Fatalf("NormalizeTime(%q) message %q, want %q", tc.in, err.Error(), tc.msg)
		}
	}
}
