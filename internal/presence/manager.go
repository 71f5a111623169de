package presence

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"presenced/internal/cache"
	"presenced/internal/metrics"
	"presenced/internal/models"
	"presenced/internal/privacy"
	"presenced/internal/session"
)

// SessionDirectory is the registry of connected sessions the manager reads.
// Session state is never mutated from here.
type SessionDirectory interface {
	Sessions(username string) []session.Session
	SessionCount(username string) int
	ActiveSessionCount(username string) int
}

// RosterProvider looks up subscription state between an owner and a contact.
type RosterProvider interface {
	Subscription(owner string, contact models.Address) (models.SubscriptionRecord, error)
}

// PrivacyProvider resolves the privacy lists filtering outgoing presences.
type PrivacyProvider interface {
	Effective(addr models.Address) *privacy.List
	Default(username string) *privacy.List
}

// Deliverer hands a presence packet to the delivery transport.
type Deliverer interface {
	Deliver(presence models.Presence) error
}

// ComponentRouter exposes the component manager's routing table and its
// pending-probe registry.
type ComponentRouter interface {
	HasRoute(addr models.Address) bool
	RouteTo(addr models.Address, presence models.Presence) error
	AddPendingProbe(prober, probee models.Address)
}

// AccountDirectory answers whether a username names a registered local
// account. Anonymous sessions are not registered.
type AccountDirectory interface {
	IsRegistered(username string) bool
}

// AccountDirectoryFunc adapts a function to the AccountDirectory interface.
type AccountDirectoryFunc func(username string) bool

func (f AccountDirectoryFunc) IsRegistered(username string) bool { return f(username) }

// DirectPresenceTracker remembers which sessions sent a direct (non-broadcast)
// available presence to which recipients.
type DirectPresenceTracker interface {
	HasDirectPresence(from, to models.Address) bool
}

// Collaborators bundles the external dependencies injected into the manager.
type Collaborators struct {
	Sessions   SessionDirectory
	Accounts   AccountDirectory
	Roster     RosterProvider
	Privacy    PrivacyProvider
	Deliverer  Deliverer
	Components ComponentRouter
	Direct     DirectPresenceTracker
}

// Manager implements the presence subsystem: aggregation of per-session
// presence, the offline presence cache, probe authorization and routing.
type Manager struct {
	domain  string
	offline *cache.Layer
	c       Collaborators
	logger  *zap.Logger

	subscribers *subscriberList
}

// NewManager creates a presence manager for the given server domain.
func NewManager(domain string, offline *cache.Layer, c Collaborators, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		domain:      domain,
		offline:     offline,
		c:           c,
		logger:      logger,
		subscribers: newSubscriberList(),
	}
}

// Subscribe registers a listener for presence change events.
func (m *Manager) Subscribe(fn func(Event)) {
	m.subscribers.add(fn)
}

// Available reports whether the user has at least one active session.
func (m *Manager) Available(username string) bool {
	return m.c.Sessions.ActiveSessionCount(username) > 0
}

// CurrentPresence aggregates a user's live sessions into their single best
// presence: the highest show rank wins, and on a tie the session registered
// first. found is false when the user has no sessions.
func (m *Manager) CurrentPresence(username string) (models.Presence, bool) {
	var best models.Presence
	found := false
	for _, s := range m.c.Sessions.Sessions(username) {
		if !found || s.Presence.Show.Rank() > best.Show.Rank() {
			best = s.Presence
			found = true
		}
	}
	return best, found
}

// Presences returns one presence snapshot per live session.
func (m *Manager) Presences(username string) []models.Presence {
	sessions := m.c.Sessions.Sessions(username)
	out := make([]models.Presence, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Presence)
	}
	return out
}

// LastPresenceStatus returns the status text captured when the user last
// went offline. found is false when nothing was recorded or the stored
// presence carried no payload.
func (m *Manager) LastPresenceStatus(ctx context.Context, username string) (string, bool) {
	rec, found, err := m.offline.Offline(ctx, username)
	if err != nil {
		m.logger.Error("failed to read offline presence", zap.String("username", username), zap.Error(err))
		return "", false
	}
	if !found || rec.Payload == nil {
		return "", false
	}

	p, err := models.UnmarshalPresence(rec.Payload)
	if err != nil {
		m.logger.Error("failed to decode offline presence", zap.String("username", username), zap.Error(err))
		return "", false
	}
	return p.Status, true
}

// LastActivity returns how long ago the user went offline. found is false
// when no offline transition was ever recorded.
func (m *Manager) LastActivity(ctx context.Context, username string) (time.Duration, bool) {
	at, found, err := m.offline.LastActivity(ctx, username)
	if err != nil {
		m.logger.Error("failed to read last activity", zap.String("username", username), zap.Error(err))
		return 0, false
	}
	if !found {
		return 0, false
	}
	return time.Since(at), true
}

// UserAvailable handles a session's transition to available. It only acts on
// broadcast presences (no destination) from local registered users, and only
// for the first session: the offline presence row and both cache entries are
// cleared.
func (m *Manager) UserAvailable(ctx context.Context, presence models.Presence) {
	if !presence.To.IsZero() || !m.isLocal(presence.From) {
		return
	}
	username := presence.From.Node
	if username == "" || !m.c.Accounts.IsRegistered(username) {
		// Ignore anonymous users
		return
	}

	// Only the first session needs to clear the offline state
	if m.c.Sessions.SessionCount(username) > 1 {
		return
	}

	if err := m.offline.Clear(ctx, username); err != nil {
		m.logger.Error("failed to clear offline presence", zap.String("username", username), zap.Error(err))
		return
	}
	m.subscribers.emit(Event{Username: username, Kind: EventAvailable})
}

// UserUnavailable handles a session's transition to unavailable, recording
// the offline presence once the user's last active session is gone. The
// presence payload is persisted only when it carries child content; a bare
// unavailable still records the timestamp.
func (m *Manager) UserUnavailable(ctx context.Context, presence models.Presence) {
	if !presence.To.IsZero() || !m.isLocal(presence.From) {
		return
	}
	username := presence.From.Node
	if username == "" || !m.c.Accounts.IsRegistered(username) {
		return
	}

	// Remaining active sessions keep the user available
	if m.c.Sessions.ActiveSessionCount(username) > 0 {
		return
	}

	var payload []byte
	if presence.HasChildContent() {
		data, err := presence.Marshal()
		if err != nil {
			m.logger.Error("failed to serialize offline presence", zap.String("username", username), zap.Error(err))
			return
		}
		payload = data
	}

	changed, err := m.offline.RecordUnavailable(ctx, username, payload, time.Now().UTC())
	if err != nil {
		m.logger.Error("failed to record offline presence", zap.String("username", username), zap.Error(err))
		return
	}
	if changed {
		metrics.ObserveOfflineWrite()
		m.subscribers.emit(Event{Username: username, Kind: EventUnavailable})
	}
}

// AccountDeleted purges a user's offline presence row and both cache entries.
func (m *Manager) AccountDeleted(ctx context.Context, username string) {
	if err := m.offline.Clear(ctx, username); err != nil {
		m.logger.Error("failed to purge offline presence", zap.String("username", username), zap.Error(err))
		return
	}
	m.subscribers.emit(Event{Username: username, Kind: EventDeleted})
}

// HandleProbe authorizes a probe packet against the probee's roster and
// either routes it or answers the prober with an error presence. A missing
// roster entry denies with forbidden.
func (m *Manager) HandleProbe(ctx context.Context, packet models.Presence) {
	prober, probee := packet.From, packet.To
	record, err := m.c.Roster.Subscription(probee.Node, prober)
	if err != nil {
		metrics.ObserveProbe("forbidden")
		m.denyProbe(prober, probee, models.ConditionForbidden)
		return
	}

	if record.Subscription == models.SubFrom || record.Subscription == models.SubBoth {
		metrics.ObserveProbe("allowed")
		m.ProbePresence(ctx, prober, probee)
		return
	}

	condition := models.ConditionNotAuthorized
	if (record.Subscription == models.SubNone && record.PendingIn != models.AskSubscribe) ||
		(record.Subscription == models.SubTo && record.PendingIn != models.AskSubscribe) {
		condition = models.ConditionForbidden
	}
	metrics.ObserveProbe(string(condition))
	m.denyProbe(prober, probee, condition)
}

// CanProbePresence reports whether the prober is allowed to see the probee's
// presence, without routing anything.
func (m *Manager) CanProbePresence(prober models.Address, probee string) bool {
	record, err := m.c.Roster.Subscription(probee, prober)
	if err != nil {
		return false
	}
	return record.Subscription == models.SubFrom || record.Subscription == models.SubBoth
}

// ProbePresence routes an authorized probe. Local probees are answered
// directly from their live sessions or their offline record; component and
// remote probees get a probe packet forwarded; probes for components that
// have not connected yet are parked in the pending registry. Failures are
// logged per destination and never abort the remaining deliveries.
func (m *Manager) ProbePresence(ctx context.Context, prober, probee models.Address) {
	if m.isLocal(probee) {
		m.probeLocal(ctx, prober, probee)
		return
	}

	if m.c.Components.HasRoute(probee) {
		// The component is responsible for the eventual reply
		probe := models.Presence{Type: models.TypeProbe, From: prober, To: probee}
		if err := m.c.Components.RouteTo(probee, probe); err != nil {
			m.logger.Error("failed to route probe to component",
				zap.String("probee", probee.String()), zap.Error(err))
		}
		return
	}

	if m.isRemote(probee) {
		// Fire and forget; the remote server replies on its own
		probe := models.Presence{Type: models.TypeProbe, From: prober, To: probee.Bare()}
		m.deliver(probe)
		return
	}

	// The probee may belong to a component that has not connected yet; the
	// component answers the parked probe when it registers.
	m.c.Components.AddPendingProbe(prober, probee)
}

// SendUnavailableFromSessions tells the recipient that each of the user's
// sessions went unavailable, except sessions that sent the recipient a
// direct available presence: a directed presence overrides the broadcast
// default.
func (m *Manager) SendUnavailableFromSessions(recipient, user models.Address) {
	if !m.isLocal(user) || !m.c.Accounts.IsRegistered(user.Node) {
		return
	}

	destinations := m.expandRecipient(recipient)
	for _, s := range m.c.Sessions.Sessions(user.Node) {
		if m.c.Direct.HasDirectPresence(s.Address, recipient) {
			continue
		}
		packet := models.Presence{Type: models.TypeUnavailable, From: s.Address}
		for _, to := range destinations {
			packet.To = to
			m.deliver(packet)
		}
	}
}

// probeLocal answers a probe for a local probee from its live sessions, or
// from the offline record when none are connected.
func (m *Manager) probeLocal(ctx context.Context, prober, probee models.Address) {
	destinations := m.expandProber(prober)

	sessions := m.c.Sessions.Sessions(probee.Node)
	if len(sessions) == 0 {
		m.probeOffline(ctx, probee, destinations)
		return
	}

	for _, s := range sessions {
		packet := s.Presence.Copy()
		packet.Type = models.TypeAvailable
		packet.From = s.Address
		list := m.c.Privacy.Effective(s.Address)
		for _, to := range destinations {
			packet.To = to
			if list.Blocks(packet) {
				// Blocked destinations are skipped, not fatal
				continue
			}
			m.deliver(packet)
		}
	}
}

// probeOffline replies with the probee's reconstructed last unavailable
// presence. No record or no payload means silence.
func (m *Manager) probeOffline(ctx context.Context, probee models.Address, destinations []models.Address) {
	rec, found, err := m.offline.Offline(ctx, probee.Node)
	if err != nil {
		m.logger.Error("failed to load offline presence for probe",
			zap.String("probee", probee.Node), zap.Error(err))
		return
	}
	if !found || rec.Payload == nil {
		return
	}

	packet, err := models.UnmarshalPresence(rec.Payload)
	if err != nil {
		m.logger.Error("failed to decode offline presence for probe",
			zap.String("probee", probee.Node), zap.Error(err))
		return
	}
	packet.From = probee.Bare()

	// Offline replies are filtered by the probee's default list only
	list := m.c.Privacy.Default(probee.Node)
	for _, to := range destinations {
		packet.To = to
		if list.Blocks(packet) {
			continue
		}
		m.deliver(packet)
	}
}

// expandProber resolves the destination addresses a probe reply goes to: a
// bare local prober receives it on every connected session.
func (m *Manager) expandProber(prober models.Address) []models.Address {
	if prober.IsBare() && m.isLocal(prober) {
		var out []models.Address
		for _, s := range m.c.Sessions.Sessions(prober.Node) {
			out = append(out, s.Address)
		}
		return out
	}
	return []models.Address{prober}
}

// expandRecipient fans a local recipient out to all of its session addresses.
func (m *Manager) expandRecipient(recipient models.Address) []models.Address {
	if m.isLocal(recipient) {
		var out []models.Address
		for _, s := range m.c.Sessions.Sessions(recipient.Node) {
			out = append(out, s.Address)
		}
		return out
	}
	return []models.Address{recipient}
}

func (m *Manager) denyProbe(prober, probee models.Address, condition models.ErrorCondition) {
	reply := models.Presence{
		Type:  models.TypeError,
		Error: condition,
		From:  probee,
		To:    prober,
	}
	m.deliver(reply)
}

func (m *Manager) deliver(packet models.Presence) {
	err := m.c.Deliverer.Deliver(packet)
	metrics.ObserveDelivery(err)
	if err != nil {
		m.logger.Error("failed to deliver presence",
			zap.String("to", packet.To.String()), zap.Error(err))
	}
}

func (m *Manager) isLocal(addr models.Address) bool {
	return addr.Domain == m.domain
}

// isRemote reports whether the address lives on another server entirely. A
// subdomain of the server domain is assumed to be a component of this
// server, connected or not.
func (m *Manager) isRemote(addr models.Address) bool {
	return addr.Domain != m.domain && !strings.HasSuffix(addr.Domain, "."+m.domain)
}
