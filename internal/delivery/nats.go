package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"presenced/internal/models"
)

// Deliverer publishes presence packets as JSON over per-destination NATS
// subjects. Downstream connection managers subscribe to their users'
// subjects and push the packets onto the wire.
type Deliverer struct {
	conn    *nats.Conn
	prefix  string
	ownConn bool
}

// NewDeliverer wraps an existing NATS connection, typically shared with the
// KV store.
func NewDeliverer(conn *nats.Conn, prefix string) *Deliverer {
	if prefix == "" {
		prefix = "presence.deliver"
	}
	return &Deliverer{conn: conn, prefix: prefix}
}

// Dial connects to NATS and returns a deliverer owning the connection.
func Dial(serverURL, prefix string) (*Deliverer, error) {
	if serverURL == "" {
		serverURL = nats.DefaultURL
	}
	conn, err := nats.Connect(serverURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	d := NewDeliverer(conn, prefix)
	d.ownConn = true
	return d, nil
}

// Deliver publishes the presence to its destination's subject.
func (d *Deliverer) Deliver(presence models.Presence) error {
	if presence.To.IsZero() {
		return errors.New("presence has no destination")
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	if err := d.conn.Publish(d.subject(presence.To), data); err != nil {
		return fmt.Errorf("failed to publish presence: %w", err)
	}
	return nil
}

// Close releases the connection when this deliverer owns it.
func (d *Deliverer) Close() {
	if d.ownConn && d.conn != nil {
		d.conn.Close()
	}
}

// subject maps a destination address onto a NATS subject. Dots in the
// domain would split subject tokens, so they are folded to underscores.
func (d *Deliverer) subject(to models.Address) string {
	domain := strings.ReplaceAll(to.Domain, ".", "_")
	if to.Node == "" {
		return fmt.Sprintf("%s.%s", d.prefix, domain)
	}
	return fmt.Sprintf("%s.%s.%s", d.prefix, domain, to.Node)
}
