package store

import (
	"testing"

	"github.com/Kaungwintshein/queue-management-system-api-sub001/internal/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		want   bool
	}{
		{"call_next", models.StatusWaiting, true},
		{"call_next", models.StatusCalled, false},
		{"start_serving", models.StatusCalled, true},
		{"start_serving", models.StatusWaiting, false},
		{"complete", models.StatusServing, true},
		{"complete", models.StatusCalled, false},
		{"no_show", models.StatusCalled, true},
		{"no_show", models.StatusServing, false},
		{"recall", models.StatusNoShow, true},
		{"recall", models.StatusWaiting, false},
		{"cancel", models.StatusWaiting, true},
		{"cancel", models.StatusCalled, true},
		{"cancel", models.StatusServing, false},
		{"cancel", models.StatusCompleted, false},
		{"announce", models.StatusCalled, true},
		{"announce", models.StatusWaiting, false},
		{"unknown", models.StatusWaiting, false},
	}
	for _, tc := range cases {
		if got := ValidTransition(tc.action, tc.from); got != tc.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tc.action, tc.from, got, tc.want)
		}
	}
}

func TestFormatTokenNumber(t *testing.T) {
	cases := []struct {
		prefix string
		value  int
		want   string
	}{
		{"I", 1, "I001"},
		{"B", 42, "B042"},
		{"R", 999, "R999"},
		{"VIP", 7, "VIP007"},
		{"I", 1000, "I1000"},
	}
	for _, tc := range cases {
		if got := FormatTokenNumber(tc.prefix, tc.value); got != tc.want {
			t.Errorf("FormatTokenNumber(%q, %d) = %q, want %q", tc.prefix, tc.value, got, tc.want)
		}
	}
}

func TestNextNumber(t *testing.T) {
	cases := []struct {
		current     int
		max         int
		want        int
		wantWrapped bool
	}{
		{0, 999, 1, false},
		{41, 999, 42, false},
		{999, 999, 1, true},
		{998, 999, 999, false},
		{5, 0, 6, false},
		{1000000, 0, 1000001, false},
	}
	for _, tc := range cases {
		got, wrapped := NextNumber(tc.current, tc.max)
		if got != tc.want || wrapped != tc.wantWrapped {
			t.Errorf("NextNumber(%d, %d) = (%d, %v), want (%d, %v)", tc.current, tc.max, got, wrapped, tc.want, tc.wantWrapped)
		}
	}
}

func TestEstimateWaitMinutes(t *testing.T) {
	cases := []struct {
		position int
		avg      float64
		want     int
	}{
		{1, 5, 5},
		{3, 5, 15},
		{4, 2.5, 10},
		{3, 4.4, 13},
		{0, 5, 5},
		{2, 0, 10},
		{2, -1, 10},
	}
	for _, tc := range cases {
		if got := EstimateWaitMinutes(tc.position, tc.avg); got != tc.want {
			t.Errorf("EstimateWaitMinutes(%d, %v) = %d, want %d", tc.position, tc.avg, got, tc.want)
		}
	}
}
