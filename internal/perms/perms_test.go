package perms

import "testing"

func TestResolve(t *testing.T) {
	reader := &Group{ID: "0"}
	writer := &Group{ID: "1"}
	manager := &Group{ID: "2"}
	disabled := &Group{ID: "3"}

	cases := []struct {
		name     string
		groupIDs []string
		roles    RoleGroups
		want     Record
	}{
		{
			"no groups, no roles defined",
			nil,
			RoleGroups{},
			Record{Writer: true},
		},
		{
			"reader group only",
			[]string{"0"},
			RoleGroups{Reader: reader},
			Record{Reader: true},
		},
		{
			"membership in a non-role group keeps baseline",
			[]string{"9"},
			RoleGroups{Reader: reader},
			Record{Writer: true},
		},
		{
			"writer evaluated after reader overwrites it",
			[]string{"0", "1"},
			RoleGroups{Reader: reader, Writer: writer},
			Record{Writer: true},
		},
		{
			"manager wins over reader and writer",
			[]string{"0", "1", "2"},
			RoleGroups{Reader: reader, Writer: writer, Manager: manager},
			Record{Manager: true},
		},
		{
			"disabled stacks on the resolved role",
			[]string{"0", "1", "3"},
			RoleGroups{Reader: reader, Writer: writer, Disabled: disabled},
			Record{Writer: true, Disabled: true},
		},
		{
			"disabled manager keeps manager flag",
			[]string{"2", "3"},
			RoleGroups{Manager: manager, Disabled: disabled},
			Record{Manager: true, Disabled: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.groupIDs, tc.roles)
			if got != tc.want {
				t.Fatalf("Resolve() = %+v, want %+v", got, tc.want)
			}
			// Pure function: same inputs, same output.
			if again := Resolve(tc.groupIDs, tc.roles); again != got {
				t.Fatalf("Resolve() not idempotent: %+v then %+v", got, again)
			}
		})
	}
}

func TestCanWrite(t *testing.T) {
	cases := []struct {
		record Record
		want   bool
	}{
		{Record{Writer: true}, true},
		{Record{Manager: true}, true},
		{Record{Reader: true}, false},
		{Record{Writer: true, Disabled: true}, false},
		{Record{Manager: true, Disabled: true}, false},
	}
	for _, tc := range cases {
		if got := tc.record.CanWrite(); got != tc.want {
			t.Fatalf("CanWrite(%+v) = %v, want %v", tc.record, got, tc.want)
		}
	}
}
