package patients

// Identity links a Source appointment to a Store patient row. Identities are
// only ever read or created, never mutated or deleted.
type Identity struct {
	PatientID int    `json:"patient_id"`
	Code      string `json:"patient_code"`
}

// Method records which identity source resolved a patient.
type Method string

const (
	// MethodStrong means the appointment carried the strong code and the
	// Store knew it.
	MethodStrong Method = "strong"
	// MethodSecondary means the insurance number led to the code via the
	// offline archive.
	MethodSecondary Method = "secondary"
	// MethodNameBirth means surname plus birth date led to the code via
	// the offline archive.
	MethodNameBirth Method = "name_dob"
	// MethodNew means a patient row was provisioned (or recovered by the
	// duplicate re-check) during this run.
	MethodNew Method = "new"
)
