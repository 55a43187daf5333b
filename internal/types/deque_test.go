package types_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/softphone/internal/types"
)

func TestDeque_AppendPopFirst(t *testing.T) {
	t.Parallel()

	var d types.Deque[int]

	for i := 1; i <= 3; i++ {
		if got := d.Append(i); got != i {
			t.Fatalf("d.Append(%d) = %d, want %d", i, got, i)
		}
	}

	for want := 1; want <= 3; want++ {
		item, ok := d.PopFirst()
		if !ok {
			t.Fatalf("d.PopFirst() returned ok=false, want true for value %d", want)
		}
		if item != want {
			t.Fatalf("d.PopFirst() = %d, want %d", item, want)
		}
	}

	if _, ok := d.PopFirst(); ok {
		t.Fatalf("d.PopFirst() on empty deque returned ok=true, want false")
	}
}

func TestDeque_Drain(t *testing.T) {
	t.Parallel()

	var d types.Deque[string]
	if got := d.Drain(); got != nil {
		t.Fatalf("d.Drain() on empty deque = %v, want nil", got)
	}

	d.Append("a")
	d.Append("b")
	if diff := cmp.Diff(d.Drain(), []string{"a", "b"}); diff != "" {
		t.Errorf("d.Drain() mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := d.Len(); got != 0 {
		t.Errorf("d.Len() after Drain = %d, want 0", got)
	}
}

func TestCallbackManager(t *testing.T) {
	t.Parallel()

	var m types.CallbackManager[func() string]

	rmA := m.Add(func() string { return "a" })
	m.Add(func() string { return "b" })
	rmA()
	rmA()
	m.Add(func() string { return "c" })

	var got []string
	for fn := range m.All() {
		got = append(got, fn())
	}
	if diff := cmp.Diff(got, []string{"b", "c"}); diff != "" {
		t.Errorf("callbacks mismatch\ndiff (-got +want):\n%v", diff)
	}

	m.Clear()
	if got := m.Len(); got != 0 {
		t.Errorf("m.Len() after Clear = %d, want 0", got)
	}
}
