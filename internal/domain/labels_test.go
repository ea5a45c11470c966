package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTargetLabels(t *testing.T) {
	tests := []struct {
		name    string
		current []string
		add     []string
		remove  []string
		want    []string
	}{
		{"add and remove", []string{"OldLabel"}, []string{"NewLabel"}, []string{"OldLabel"}, []string{"NewLabel"}},
		{"keeps unrelated", []string{"Other"}, []string{"NewLabel"}, []string{"OldLabel"}, []string{"NewLabel", "Other"}},
		{"add wins on conflict", nil, []string{"X"}, []string{"X"}, []string{"X"}},
		{"add wins when present", []string{"X"}, []string{"X"}, []string{"X"}, []string{"X"}},
		{"remove only", []string{"a", "b"}, nil, []string{"a"}, []string{"b"}},
		{"empty delta", []string{"a"}, nil, nil, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetLabels(NewLabelSet(tt.current...), NewLabelSet(tt.add...), NewLabelSet(tt.remove...)).Sorted()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TargetLabels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	current := NewLabelSet("a", "b")
	target := NewLabelSet("b", "c")

	d := Diff(current, target)
	if !reflect.DeepEqual(d.Add, []string{"c"}) {
		t.Errorf("Add = %v, want [c]", d.Add)
	}
	if !reflect.DeepEqual(d.Remove, []string{"a"}) {
		t.Errorf("Remove = %v, want [a]", d.Remove)
	}
	if d.Empty() {
		t.Error("delta should not be empty")
	}
	if !Diff(target, target).Empty() {
		t.Error("diff of equal sets should be empty")
	}
}

func TestLabelSet_Equal(t *testing.T) {
	if !NewLabelSet("a", "b").Equal(NewLabelSet("b", "a")) {
		t.Error("sets with same members should be equal")
	}
	if NewLabelSet("a").Equal(NewLabelSet("a", "b")) {
		t.Error("sets of different size should not be equal")
	}
	if NewLabelSet("a", "c").Equal(NewLabelSet("a", "b")) {
		t.Error("sets with different members should not be equal")
	}
}

func TestLabelSet_JSON(t *testing.T) {
	data, err := json.Marshal(NewLabelSet("z", "a"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["a","z"]` {
		t.Errorf("Marshal = %s, want [\"a\",\"z\"]", data)
	}

	var s LabelSet
	if err := json.Unmarshal([]byte(`["x","y","x"]`), &s); err != nil {
		t.Fatal(err)
	}
	if len(s) != 2 || !s.Has("x") || !s.Has("y") {
		t.Errorf("Unmarshal = %v, want {x, y}", s.Sorted())
	}
}
