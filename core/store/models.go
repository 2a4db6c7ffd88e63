package store

import "time"

// dateLayout is the Store's native date encoding (DD.MM.YYYY).
const dateLayout = "02.01.2006"

// FormatDate renders a time in the Store's native date encoding.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a Store-native date string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// Patient is the durable patient registry row the engine resolves against.
// Code is the strong identifier (stable numeric patient code) used to re-find
// the same patient across runs.
type Patient struct {
	PatientID int
	Code      string
	Surname   string
	GivenName string
	BirthDate string // Store-native DD.MM.YYYY
}

// NewPatient carries the fields for provisioning a patient row.
type NewPatient struct {
	Code            string
	Surname         string
	GivenName       string
	BirthDate       string // Store-native DD.MM.YYYY
	InsuranceNumber string
}

// Examination is one examination row owned by the Store.
type Examination struct {
	ExaminationID     int
	Date              string // Store-native DD.MM.YYYY
	Time              string // HH:MM
	PatientID         int
	ExaminationTypeID int
	ExaminerBillingID int
	RoomID            int
	Notes             string
}

// Fixed administrative defaults applied to every inserted examination row.
// The values mirror what the practice's billing workflow expects for rows
// created by the scheduler rather than by hand.
const (
	DefaultReferrerID   = 2
	DefaultXRay         = 1
	DefaultHeartTeam    = 1
	DefaultMaterialCost = 0
	DefaultDRGID        = 1
)

// ExaminationType is one row of the examination-type metadata table. A single
// Store type may claim several external Source appointment-type codes; the
// proxy stores them as a JSON-encoded array in one column.
type ExaminationType struct {
	ExaminationTypeID int
	Name              string
	ExternalCodes     []int
}

// QueryResult is the proxy's answer to an executed statement.
type QueryResult struct {
	Success  bool             `json:"success"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowcount"`
	Error    string           `json:"error"`
}

// UpsertRequest describes an upsert_data call. Insert is implied when
// SearchFields matches nothing.
type UpsertRequest struct {
	Table        string         `json:"table"`
	Database     string         `json:"database"`
	SearchFields map[string]any `json:"search_fields"`
	UpdateFields map[string]any `json:"update_fields"`
	KeyFields    []string       `json:"key_fields"`
}

// Upsert operation codes reported by the proxy.
const (
	OpUpdated  = 1
	OpInserted = 2
)

// UpsertResult is the proxy's answer to an upsert_data call.
type UpsertResult struct {
	Success       bool   `json:"success"`
	OperationCode int    `json:"operation_code"`
	ID            int    `json:"id"`
	Error         string `json:"error"`
}
