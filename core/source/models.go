package source

import (
	"strings"
	"time"
)

// scheduledLayout is the Source's appointment datetime encoding.
const scheduledLayout = "2006-01-02T15:04:05"

// Appointment is one scheduling-system appointment as returned by the
// appointment search. Patient reference fields are embedded in the
// appointment payload; the strong code may be absent for patients the
// practice has not registered yet.
type Appointment struct {
	ID              int    `json:"id"`
	TypeID          int    `json:"appointment_type"`
	ScheduledFor    string `json:"scheduled_for_datetime"`
	DoctorID        int    `json:"doctor_id"`
	RoomID          int    `json:"room_id"`
	Status          string `json:"status"`
	PatientCode     string `json:"patient_code"`
	InsuranceNumber string `json:"insurance_number"`
	Surname         string `json:"surname"`
	GivenName       string `json:"given_name"`
	BirthDate       string `json:"date_of_birth"` // YYYY-MM-DD
	Notes           string `json:"notes"`
}

// StartTime parses the appointment's scheduled datetime.
func (a Appointment) StartTime() (time.Time, error) {
	return time.Parse(scheduledLayout, a.ScheduledFor)
}

// Active reports whether the appointment still counts toward the target
// state. Cancelled appointments are treated as if they do not exist.
// The upstream data carries the American spelling; both are accepted.
func (a Appointment) Active() bool {
	s := strings.ToLower(a.Status)
	return s != "canceled" && s != "cancelled"
}

// Patient is the Source's view of a patient record, used to validate a
// patient code before a single-patient run is accepted.
type Patient struct {
	Code      string `json:"patient_code"`
	Surname   string `json:"surname"`
	GivenName string `json:"given_name"`
	BirthDate string `json:"date_of_birth"` // YYYY-MM-DD
}

// SearchQuery narrows an appointment search to one day, one appointment
// type and optionally one workflow status.
type SearchQuery struct {
	Date   time.Time
	TypeID int
	Status string // empty means all statuses
}
