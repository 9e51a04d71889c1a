package migrate

import (
	"testing"
)

func TestNewRejectsMissingInputs(t *testing.T) {
	if _, err := New(nil, "db/migrations", nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
