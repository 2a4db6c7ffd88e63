package sync

import (
	"fmt"

	"clinic-sync/core/store"
)

// Scope narrows a run to a single patient. The zero value means the whole
// day. Scoped runs never delete, whatever the target date.
type Scope struct {
	PatientCode string
}

// WholeDay reports whether the run covers every patient of the day.
func (s Scope) WholeDay() bool { return s.PatientCode == "" }

// Item actions reported per appointment or examination row.
const (
	ActionInserted      = "inserted"
	ActionExists        = "exists"
	ActionUpdated       = "updated"
	ActionDeleted       = "deleted"
	ActionDeleteSkipped = "delete_skipped"
	ActionUnmapped      = "unmapped"
	ActionUnresolved    = "unresolved"
	ActionFailed        = "failed"
	ActionOutOfScope    = "out_of_scope"
)

// Item is the outcome for one appointment or one orphaned examination row.
type Item struct {
	AppointmentID int    `json:"appointment_id,omitempty"`
	ExaminationID int    `json:"examination_id,omitempty"`
	PatientCode   string `json:"patient_code,omitempty"`
	Method        string `json:"resolution_method,omitempty"`
	Action        string `json:"action"`
	Detail        string `json:"detail,omitempty"`
}

// RunResult summarizes one reconciliation run.
type RunResult struct {
	Date       string `json:"date"`
	TypeID     int    `json:"appointment_type_id"`
	Considered int    `json:"considered"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Existing   int    `json:"existing"`
	Deleted    int    `json:"deleted"`
	Unmapped   int    `json:"unmapped"`
	Unresolved int    `json:"unresolved"`
	Failed     int    `json:"failed"`
	Items      []Item `json:"items"`
}

// fingerprint is the identity of an examination row for reconciliation.
// Two rows with the same fingerprint describe the same clinical event;
// time and notes stay out so they remain updatable in place.
func fingerprint(date string, patientID, examinerBillingID, roomID, typeID int) string {
	return fmt.Sprintf("%s|%d|%d|%d|%d", date, patientID, examinerBillingID, roomID, typeID)
}

func examinationFingerprint(e store.Examination) string {
	return fingerprint(e.Date, e.PatientID, e.ExaminerBillingID, e.RoomID, e.ExaminationTypeID)
}
