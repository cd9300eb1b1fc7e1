// Package store provides the shared key/value store backends and the
// persisted key schema.
package store

import "fmt"

// Key schema. Keys are namespaced by session and, where applicable,
// trading pair; the literal layouts below are persisted and must not change.

// OrderKey is the serialized Order record
func OrderKey(orderID string) string {
	return "order:" + orderID
}

// FillKey is the serialized Fill record; its set-if-absent write doubles as
// the fill replay guard.
func FillKey(fillID string) string {
	return "fill:" + fillID
}

// OrderFillsKey is the append-only list of fill ids applied to an order
func OrderFillsKey(orderID string) string {
	return "order:" + orderID + ":fills"
}

// TakeProfitKey is the take-profit idempotency claim/record
func TakeProfitKey(sessionID, positionID string) string {
	return fmt.Sprintf("tp_order:%s:%s", sessionID, positionID)
}

// TakeProfitAttemptKey is the take-profit attempt audit trail
func TakeProfitAttemptKey(sessionID, positionID string) string {
	return fmt.Sprintf("tp_attempt:%s:%s", sessionID, positionID)
}

// WorkerKey is the TTL-bounded worker liveness heartbeat
func WorkerKey(workerID string) string {
	return "worker:" + workerID
}

// SessionOrdersKey is the set of order ids placed within a session
func SessionOrdersKey(sessionID string) string {
	return fmt.Sprintf("session:%s:orders", sessionID)
}
