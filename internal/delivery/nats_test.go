package delivery

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"presenced/internal/models"
)

func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("server did not become ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestDeliverer_PublishesToDestinationSubject(t *testing.T) {
	ns := startTestServer(t)

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	sub, err := conn.SubscribeSync("presence.test.>")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	conn.Flush()

	d := NewDeliverer(conn, "presence.test")
	presence := models.Presence{
		Type:   models.TypeUnavailable,
		Status: "gone",
		From:   models.NewAddress("alice", "example.org", "desk"),
		To:     models.NewAddress("bob", "example.org", "phone"),
	}
	if err := d.Deliver(presence); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no message received: %v", err)
	}
	// Dots in the domain are folded so the subject keeps its token structure.
	if msg.Subject != "presence.test.example_org.bob" {
		t.Errorf("Subject = %q", msg.Subject)
	}

	var got models.Presence
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if got.Type != presence.Type || got.Status != presence.Status || got.To != presence.To {
		t.Errorf("payload mismatch: %+v", got)
	}
}

func TestDeliverer_DomainOnlyDestination(t *testing.T) {
	ns := startTestServer(t)

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	sub, err := conn.SubscribeSync("presence.deliver.>")
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	conn.Flush()

	d := NewDeliverer(conn, "")
	presence := models.Presence{
		Type: models.TypeProbe,
		From: models.NewAddress("alice", "example.org", ""),
		To:   models.NewAddress("", "remote.example.net", ""),
	}
	if err := d.Deliver(presence); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("no message received: %v", err)
	}
	if msg.Subject != "presence.deliver.remote_example_net" {
		t.Errorf("Subject = %q", msg.Subject)
	}
}

func TestDeliverer_RejectsMissingDestination(t *testing.T) {
	d := NewDeliverer(nil, "")
	if err := d.Deliver(models.Presence{Type: models.TypeAvailable}); err == nil {
		t.Errorf("expected error for presence without destination")
	}
}
