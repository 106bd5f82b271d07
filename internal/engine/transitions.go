package engine

import "blinkworks/internal/domain"

// Event is a lifecycle trigger.
type Event string

const (
	EventSubmitDraft       Event = "submit_draft"
	EventSendToMarketplace Event = "send_to_marketplace"
	EventAssignDesigner    Event = "assign_designer"
	EventRequestInfo       Event = "request_info"
	EventResubmit          Event = "resubmit"
	EventClaim             Event = "claim"
	EventSubmitDelivery    Event = "submit_delivery"
	EventAdminApprove      Event = "admin_approve"
	EventRequestRevision   Event = "request_revision"
	EventRejectDelivery    Event = "reject_delivery"
	EventApproveDelivery   Event = "approve_delivery"
	EventCancel            Event = "cancel"
)

// Events lists every lifecycle event.
var Events = []Event{
	EventSubmitDraft,
	EventSendToMarketplace,
	EventAssignDesigner,
	EventRequestInfo,
	EventResubmit,
	EventClaim,
	EventSubmitDelivery,
	EventAdminApprove,
	EventRequestRevision,
	EventRejectDelivery,
	EventApproveDelivery,
	EventCancel,
}

// Next returns the status reached by ev from status from. Guards that depend on
// task fields (pushed, assignee) are checked by the operations, not here.
func Next(from domain.TaskStatus, ev Event) (domain.TaskStatus, bool) {
	if ev == EventCancel {
		if from.Valid() && !from.Terminal() {
			return domain.StatusCancelled, true
		}
		return "", false
	}
	switch from {
	case domain.StatusDraft:
		if ev == EventSubmitDraft {
			return domain.StatusSubmitted, true
		}
	case domain.StatusSubmitted:
		switch ev {
		case EventSendToMarketplace:
			return domain.StatusInReview, true
		case EventAssignDesigner:
			return domain.StatusInProgress, true
		case EventRequestInfo:
			return domain.StatusInfoRequested, true
		}
	case domain.StatusInfoRequested:
		if ev == EventResubmit {
			return domain.StatusSubmitted, true
		}
	case domain.StatusInReview:
		if ev == EventClaim {
			return domain.StatusInProgress, true
		}
	case domain.StatusInProgress:
		switch ev {
		case EventSubmitDelivery:
			return domain.StatusReadyForReview, true
		case EventSendToMarketplace:
			return domain.StatusInReview, true
		}
	case domain.StatusRevisionRequested:
		if ev == EventSubmitDelivery {
			return domain.StatusReadyForReview, true
		}
	case domain.StatusReadyForReview:
		switch ev {
		case EventAdminApprove:
			return domain.StatusApproved, true
		case EventRequestRevision, EventRejectDelivery:
			return domain.StatusRevisionRequested, true
		case EventApproveDelivery:
			return domain.StatusCompleted, true
		}
	case domain.StatusApproved:
		switch ev {
		case EventRequestRevision, EventRejectDelivery:
			return domain.StatusRevisionRequested, true
		case EventApproveDelivery:
			return domain.StatusCompleted, true
		}
	case domain.StatusCompleted, domain.StatusCancelled:
	}
	return "", false
}

// clientCancellable lists the statuses in which the owning client may cancel.
func clientCancellable(s domain.TaskStatus) bool {
	switch s {
	case domain.StatusDraft, domain.StatusSubmitted, domain.StatusInfoRequested, domain.StatusInReview:
		return true
	case domain.StatusInProgress, domain.StatusReadyForReview, domain.StatusRevisionRequested,
		domain.StatusApproved, domain.StatusCompleted, domain.StatusCancelled:
		return false
	}
	return false
}
