package models

import "time"

// OfflinePresenceRecord captures the last unavailable presence of a user.
// Payload is nil when the presence carried no child content; At is always
// set. A nil record pointer elsewhere means the user was never recorded.
type OfflinePresenceRecord struct {
	Payload []byte    `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Subscription is the roster subscription state between an owner and a contact
type Subscription string

const (
	SubNone Subscription = "none"
	SubTo   Subscription = "to"
	SubFrom Subscription = "from"
	SubBoth Subscription = "both"
)

// Ask is a pending subscription request attached to a roster item
type Ask string

const (
	AskNone        Ask = ""
	AskSubscribe   Ask = "subscribe"
	AskUnsubscribe Ask = "unsubscribe"
)

// SubscriptionRecord is the read-only view of a roster item this subsystem
// consumes: the subscription state plus any pending inbound request.
type SubscriptionRecord struct {
	Subscription Subscription `json:"subscription"`
	PendingIn    Ask          `json:"pending_in,omitempty"`
}
