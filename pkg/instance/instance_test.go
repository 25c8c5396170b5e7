package instance

import "testing"

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv("ARINV_INSTANCE_ID", "worker-7")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "worker-7" {
		t.Fatalf("expected worker-7, got %s", got)
	}
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv("ARINV_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected web.1, got %s", got)
	}
}
