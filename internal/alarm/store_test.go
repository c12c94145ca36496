package alarm

import "testing"

func TestStoreCreateGetListUpdateDelete(t *testing.T) {
	s := NewStore()
	if err := s.Create(Alarm{ID: "a1", Name: "one", Enabled: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(Alarm{ID: "a1"}); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	a, ok := s.Get("a1")
	if !ok || a.Name != "one" {
		t.Fatalf("got %#v, ok=%v", a, ok)
	}

	if err := s.Create(Alarm{ID: "a2", Name: "two"}); err != nil {
		t.Fatalf("create a2: %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != "a1" || list[1].ID != "a2" {
		t.Fatalf("expected sorted [a1 a2], got %#v", list)
	}

	if err := s.Update("a1", func(a *Alarm) { a.Name = "renamed" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	a, _ = s.Get("a1")
	if a.Name != "renamed" {
		t.Fatalf("expected renamed, got %q", a.Name)
	}

	s.Delete("a1")
	if _, ok := s.Get("a1"); ok {
		t.Fatal("expected a1 to be deleted")
	}
}

func TestThresholdOpCompare(t *testing.T) {
	cases := []struct {
		op       ThresholdOp
		observed float64
		target   float64
		want     bool
	}{
		{OpGreaterThan, 11, 10, true},
		{OpGreaterThan, 10, 10, false},
		{OpGreaterOrEqual, 10, 10, true},
		{OpLessThan, 5, 10, true},
		{OpLessOrEqual, 10, 10, true},
		{OpEqual, 10, 10, true},
		{OpNotEqual, 10, 10, false},
	}
	for _, c := range cases {
		if got := c.op.Compare(c.observed, c.target); got != c.want {
			t.Errorf("%v.Compare(%v, %v) = %v, want %v", c.op, c.observed, c.target, got, c.want)
		}
	}
}
