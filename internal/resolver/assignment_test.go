package resolver

import (
	"testing"

	"github.com/nerrad567/slotline/internal/provider"
)

func mustSet(t *testing.T, specs ...string) provider.FeatureSet {
	t.Helper()
	fs, err := provider.ParseFeatureSet(specs)
	if err != nil {
		t.Fatalf("ParseFeatureSet(%v): %v", specs, err)
	}
	return fs
}

func TestComputeAssignment(t *testing.T) {
	tests := []struct {
		name      string
		declared  map[string][]string
		overrides map[int]string
		def       string
		slots     int
		pkg       string
		want      []string
	}{
		{
			name: "default serves everything with no overrides",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "0/rcs", "1/mmtel"},
			},
			def:   "com.example.default",
			slots: 2,
			pkg:   "com.example.default",
			want:  []string{"0/mmtel", "0/rcs", "1/mmtel"},
		},
		{
			name: "override wins its slot",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "0/rcs"},
				"com.example.carrier": {"0/mmtel"},
			},
			overrides: map[int]string{0: "com.example.carrier"},
			def:       "com.example.default",
			slots:     1,
			pkg:       "com.example.carrier",
			want:      []string{"0/mmtel"},
		},
		{
			name: "default fills the gap the override leaves",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "0/rcs"},
				"com.example.carrier": {"0/mmtel"},
			},
			overrides: map[int]string{0: "com.example.carrier"},
			def:       "com.example.default",
			slots:     1,
			pkg:       "com.example.default",
			want:      []string{"0/rcs"},
		},
		{
			name: "override limited to its overridden slot",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "1/mmtel"},
				"com.example.carrier": {"0/mmtel", "1/mmtel"},
			},
			overrides: map[int]string{0: "com.example.carrier"},
			def:       "com.example.default",
			slots:     2,
			pkg:       "com.example.carrier",
			want:      []string{"0/mmtel"},
		},
		{
			name: "default keeps non-overridden slots whole",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "1/mmtel"},
				"com.example.carrier": {"0/mmtel", "1/mmtel"},
			},
			overrides: map[int]string{0: "com.example.carrier"},
			def:       "com.example.default",
			slots:     2,
			pkg:       "com.example.default",
			want:      []string{"1/mmtel"},
		},
		{
			name: "unclaimed candidate gets nothing",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel"},
				"com.example.other":   {"0/mmtel", "0/rcs"},
			},
			def:   "com.example.default",
			slots: 1,
			pkg:   "com.example.other",
			want:  nil,
		},
		{
			name: "override naming unknown package leaves default in place",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "0/rcs"},
			},
			overrides: map[int]string{0: "com.example.ghost"},
			def:       "com.example.default",
			slots:     1,
			pkg:       "com.example.default",
			want:      []string{"0/mmtel", "0/rcs"},
		},
		{
			name: "override with unresolved query leaves default whole for now",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "0/rcs"},
				"com.example.carrier": {},
			},
			overrides: map[int]string{0: "com.example.carrier"},
			def:       "com.example.default",
			slots:     1,
			pkg:       "com.example.default",
			want:      []string{"0/mmtel", "0/rcs"},
		},
		{
			name: "emergency pairs flow through",
			declared: map[string][]string{
				"com.example.default": {"0/emergency", "0/mmtel"},
			},
			def:   "com.example.default",
			slots: 1,
			pkg:   "com.example.default",
			want:  []string{"0/emergency", "0/mmtel"},
		},
		{
			name: "pairs beyond the slot count are dropped",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel", "3/mmtel"},
			},
			def:   "com.example.default",
			slots: 2,
			pkg:   "com.example.default",
			want:  []string{"0/mmtel"},
		},
		{
			name: "unknown candidate returns empty",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel"},
			},
			def:   "com.example.default",
			slots: 1,
			pkg:   "com.example.ghost",
			want:  nil,
		},
		{
			name: "override out of slot range is ignored",
			declared: map[string][]string{
				"com.example.default": {"0/mmtel"},
				"com.example.carrier": {"0/mmtel"},
			},
			overrides: map[int]string{5: "com.example.carrier"},
			def:       "com.example.default",
			slots:     1,
			pkg:       "com.example.carrier",
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := assignmentInput{
				declared:      make(map[string]provider.FeatureSet),
				overrides:     tt.overrides,
				deviceDefault: tt.def,
				slotCount:     tt.slots,
			}
			for pkg, specs := range tt.declared {
				in.declared[pkg] = mustSet(t, specs...)
			}

			got := computeAssignment(in, tt.pkg)
			want := mustSet(t, tt.want...)
			if !got.Equal(want) {
				t.Errorf("computeAssignment(%s) = %v, want %v",
					tt.pkg, got.Strings(), want.Strings())
			}
		})
	}
}

func TestComputeAssignmentDoesNotMutateInput(t *testing.T) {
	declared := mustSet(t, "0/mmtel", "0/rcs")
	in := assignmentInput{
		declared: map[string]provider.FeatureSet{
			"com.example.default": declared,
			"com.example.carrier": mustSet(t, "0/mmtel"),
		},
		overrides:     map[int]string{0: "com.example.carrier"},
		deviceDefault: "com.example.default",
		slotCount:     1,
	}

	computeAssignment(in, "com.example.default")

	if declared.Len() != 2 {
		t.Errorf("input feature set mutated: %v", declared.Strings())
	}
}
