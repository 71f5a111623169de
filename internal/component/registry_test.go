package component

import (
	"testing"

	"presenced/internal/models"
)

// recordingRoute captures delivered packets for assertions.
type recordingRoute struct {
	delivered []models.Presence
}

func (r *recordingRoute) Deliver(presence models.Presence) error {
	r.delivered = append(r.delivered, presence)
	return nil
}

func addr(s string) models.Address {
	a, err := models.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestRegistry_HasRouteAndRouteTo(t *testing.T) {
	r := NewRegistry()
	route := &recordingRoute{}

	target := addr("room@muc.example.org")
	if r.HasRoute(target) {
		t.Errorf("route reported before registration")
	}
	if err := r.RouteTo(target, models.Presence{Type: models.TypeProbe}); err == nil {
		t.Errorf("RouteTo without a route should fail")
	}

	r.AddRoute("muc.example.org", route)

	if !r.HasRoute(target) {
		t.Errorf("route not found after registration")
	}
	if err := r.RouteTo(target, models.Presence{Type: models.TypeProbe, To: target}); err != nil {
		t.Fatalf("RouteTo failed: %v", err)
	}
	if len(route.delivered) != 1 || route.delivered[0].To != target {
		t.Errorf("unexpected deliveries: %+v", route.delivered)
	}

	r.RemoveRoute("muc.example.org")
	if r.HasRoute(target) {
		t.Errorf("route survived removal")
	}
}

func TestRegistry_PendingProbesDrainedOnConnect(t *testing.T) {
	r := NewRegistry()
	prober := addr("alice@example.org/desk")
	probee := addr("room@muc.example.org")

	r.AddPendingProbe(prober, probee)
	r.AddPendingProbe(addr("bob@example.org/phone"), probee)

	if got := len(r.PendingProbes("muc.example.org")); got != 2 {
		t.Fatalf("PendingProbes = %d, want 2", got)
	}

	drained := r.AddRoute("muc.example.org", &recordingRoute{})
	if len(drained) != 2 {
		t.Fatalf("AddRoute drained %d probes, want 2", len(drained))
	}
	if drained[0].Prober != prober || drained[0].Probee != probee {
		t.Errorf("unexpected first drained probe: %+v", drained[0])
	}

	if got := len(r.PendingProbes("muc.example.org")); got != 0 {
		t.Errorf("probes still queued after drain: %d", got)
	}
	if again := r.AddRoute("muc.example.org", &recordingRoute{}); len(again) != 0 {
		t.Errorf("second AddRoute drained stale probes: %+v", again)
	}
}
