package notify

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		name   string
		sub    Scope
		target Scope
		want   bool
	}{
		{
			name:   "empty subscription receives everything",
			sub:    Scope{},
			target: Scope{OrganizationID: "org-a", CounterID: "c1"},
			want:   true,
		},
		{
			name:   "same organization",
			sub:    Scope{OrganizationID: "org-a"},
			target: Scope{OrganizationID: "org-a"},
			want:   true,
		},
		{
			name:   "different organization",
			sub:    Scope{OrganizationID: "org-a"},
			target: Scope{OrganizationID: "org-b"},
			want:   false,
		},
		{
			name:   "counter subscriber receives org-wide event",
			sub:    Scope{OrganizationID: "org-a", CounterID: "c1"},
			target: Scope{OrganizationID: "org-a"},
			want:   true,
		},
		{
			name:   "counter subscriber skips other counter",
			sub:    Scope{OrganizationID: "org-a", CounterID: "c1"},
			target: Scope{OrganizationID: "org-a", CounterID: "c2"},
			want:   false,
		},
		{
			name:   "counter subscriber receives own counter",
			sub:    Scope{OrganizationID: "org-a", CounterID: "c1"},
			target: Scope{OrganizationID: "org-a", CounterID: "c1"},
			want:   true,
		},
		{
			name:   "role filter rejects other role",
			sub:    Scope{Role: "admin"},
			target: Scope{Role: "staff"},
			want:   false,
		},
		{
			name:   "role filter passes broadcast without role",
			sub:    Scope{Role: "admin"},
			target: Scope{OrganizationID: "org-a"},
			want:   true,
		},
		{
			name:   "user-scoped event reaches only that user",
			sub:    Scope{UserID: "u1"},
			target: Scope{UserID: "u2"},
			want:   false,
		},
		{
			name:   "org-bound subscriber receives global event",
			sub:    Scope{OrganizationID: "org-a"},
			target: Scope{},
			want:   true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Match(tc.sub, tc.target); got != tc.want {
				t.Errorf("Match(%+v, %+v) = %v, want %v", tc.sub, tc.target, got, tc.want)
			}
		})
	}
}

func TestNopPublish(t *testing.T) {
	// Must not panic with any payload.
	Nop{}.Publish(Scope{}, "token.created", nil)
	Nop{}.Publish(Scope{OrganizationID: "org-a"}, "token.called", map[string]string{"x": "y"})
}
