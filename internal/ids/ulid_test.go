package ids

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewBatchIDParses(t *testing.T) {
	t.Parallel()

	id := NewBatchID()
	if len(id) != 26 {
		t.Fatalf("len(id) = %d, want 26", len(id))
	}

	if _, err := ulid.ParseStrict(id); err != nil {
		t.Fatalf("ParseStrict(%q): %v", id, err)
	}
}

func TestIDsSortWithinOneMillisecond(t *testing.T) {
	t.Parallel()

	now := time.Now()
	prev := newAt(now)

	for range 100 {
		next := newAt(now)
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}

		prev = next
	}
}
