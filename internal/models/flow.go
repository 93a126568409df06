package models

// FlowStep is the step a sign-in/out attempt is on
type FlowStep string

const (
	StepCollectingID        FlowStep = "collecting-id"
	StepCollectingClassCode FlowStep = "collecting-class-code"
	StepSelectingReason     FlowStep = "selecting-reason"
)

// DialogKind classifies the outcome shown after a submission
type DialogKind string

const (
	DialogSuccess         DialogKind = "success"
	DialogRejection       DialogKind = "rejection"
	DialogConnectionError DialogKind = "connection_error"
)

// Dialog is a single-dismissal message the front-end must show until acknowledged
type Dialog struct {
	Kind    DialogKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message,omitempty"`
	Action  Action     `json:"action,omitempty"`
}

// FlowView is a snapshot of the sign-in/out flow for rendering
type FlowView struct {
	Open      bool           `json:"open"`
	AttemptID string         `json:"attemptId,omitempty"`
	Step      FlowStep       `json:"step"`
	StudentID string         `json:"studentId"`
	ClassCode string         `json:"classCode"`
	Busy      bool           `json:"busy"`
	Dialog    *Dialog        `json:"dialog,omitempty"`
	Reasons   []ReasonOption `json:"reasons,omitempty"`
}

// StudentIDRequest is the payload of the first step
type StudentIDRequest struct {
	StudentID string `json:"studentId" binding:"max=64"`
}

// ClassCodeRequest is the payload of the class code step
type ClassCodeRequest struct {
	ClassCode string `json:"classCode" binding:"max=32"`
}

// ReasonRequest is the payload of the reason step
type ReasonRequest struct {
	Reason VisitReason `json:"reason" binding:"required,oneof=books printing catchup_exam study health other"`
}
