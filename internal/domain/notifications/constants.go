package notifications

const (
	TypeApprovalRequired = "approval_required"
	TypeLeaveSubmitted   = "leave_submitted"
	TypeLeaveApproved    = "leave_approved"
	TypeLeaveRejected    = "leave_rejected"
	TypeLeaveUnrouted    = "leave_unrouted"
	TypeStepStuck        = "approval_step_stuck"
	TypeApprovalReminder = "approval_reminder"
)

const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelPush  = "push"
)
