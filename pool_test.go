package docquiz

import "testing"

func TestDraftPoolFIFO(t *testing.T) {
	pool := newDraftPool()
	if !pool.IsEmpty() || pool.Size() != 0 {
		t.Fatalf("new pool: size=%d empty=%v", pool.Size(), pool.IsEmpty())
	}

	pool.Add(QuestionDraft{Prompt: "first"})
	pool.Add(QuestionDraft{Prompt: "second"})
	if pool.IsEmpty() || pool.Size() != 2 {
		t.Fatalf("after two adds: size=%d empty=%v", pool.Size(), pool.IsEmpty())
	}

	for _, want := range []string{"first", "second"} {
		draft, ok := pool.Next()
		if !ok || draft.Prompt != want {
			t.Errorf("next = %q ok=%v, want %q", draft.Prompt, ok, want)
		}
	}

	if !pool.IsEmpty() {
		t.Error("drained pool should be empty")
	}
	if _, ok := pool.Next(); ok {
		t.Error("next on an empty pool must report false")
	}
}
