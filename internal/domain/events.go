package domain

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
	CanonicalEventClassOps           = "ops"
)

// Consumed events.
const (
	EventAssignmentCreated = "assignment.created"
	EventShiftCompleted    = "shift.completed"
)

// Emitted events.
const (
	EventEscrowHoldCompleted    = "escrow.hold_completed"
	EventEscrowHoldFailed       = "escrow.hold_failed"
	EventEscrowReleaseCompleted = "escrow.release_completed"
	EventEscrowPayoutCompleted  = "escrow.payout_completed"
	EventEscrowPayoutFailed     = "escrow.payout_failed"
	EventEscrowPayoutEscalated  = "escrow.payout_escalated"
	EventEscrowCancelled        = "escrow.cancelled"
	EventDisputeOpened          = "dispute.opened"
	EventDisputeResolved        = "dispute.resolved"
	EventAckReminder            = "assignment.ack_reminder"
	EventAutoCancelled          = "assignment.auto_cancelled"
	EventAcknowledgedLate       = "assignment.acknowledged_late"
)

func IsCanonicalInputEvent(eventType string) bool {
	switch eventType {
	case EventAssignmentCreated, EventShiftCompleted:
		return true
	default:
		return false
	}
}

func IsCanonicalEmittedEvent(eventType string) bool {
	switch eventType {
	case EventEscrowHoldCompleted, EventEscrowHoldFailed, EventEscrowReleaseCompleted,
		EventEscrowPayoutCompleted, EventEscrowPayoutFailed, EventEscrowPayoutEscalated,
		EventEscrowCancelled, EventDisputeOpened, EventDisputeResolved,
		EventAckReminder, EventAutoCancelled, EventAcknowledgedLate:
		return true
	default:
		return false
	}
}

func CanonicalEventClass(eventType string) string {
	switch eventType {
	case EventEscrowHoldCompleted, EventEscrowReleaseCompleted, EventEscrowPayoutCompleted,
		EventEscrowCancelled, EventDisputeOpened, EventDisputeResolved, EventAutoCancelled:
		return CanonicalEventClassDomain
	case EventAckReminder, EventAcknowledgedLate, EventEscrowHoldFailed:
		return CanonicalEventClassAnalyticsOnly
	case EventEscrowPayoutFailed, EventEscrowPayoutEscalated:
		return CanonicalEventClassOps
	default:
		return ""
	}
}

func CanonicalPartitionKeyPath(eventType string) string {
	switch eventType {
	case EventAckReminder, EventAutoCancelled, EventAcknowledgedLate,
		EventAssignmentCreated, EventShiftCompleted:
		return "data.assignment_id"
	default:
		if IsCanonicalEmittedEvent(eventType) {
			return "data.record_id"
		}
		return ""
	}
}
