package models

// VisitReason is why a student is entering the library
type VisitReason string

const (
	ReasonBooks       VisitReason = "books"
	ReasonPrinting    VisitReason = "printing"
	ReasonCatchupExam VisitReason = "catchup_exam"
	ReasonStudy       VisitReason = "study"
	ReasonHealth      VisitReason = "health"
	ReasonOther       VisitReason = "other"
)

// ReasonOption is a visit reason with its button label
type ReasonOption struct {
	ID    VisitReason `json:"id"`
	Label string      `json:"label"`
}

// VisitReasons lists the selectable reasons in display order
var VisitReasons = []ReasonOption{
	{ID: ReasonBooks, Label: "Books"},
	{ID: ReasonPrinting, Label: "Printing"},
	{ID: ReasonCatchupExam, Label: "Catchup Exam"},
	{ID: ReasonStudy, Label: "Study"},
	{ID: ReasonHealth, Label: "Health"},
	{ID: ReasonOther, Label: "Other"},
}

// Valid reports whether r belongs to the closed set of visit reasons
func (r VisitReason) Valid() bool {
	for _, opt := range VisitReasons {
		if opt.ID == r {
			return true
		}
	}
	return false
}
