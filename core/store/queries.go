package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinic-sync/core/utils"
)

func (c *httpClient) QueryExaminationsByDate(ctx context.Context, date time.Time) ([]Examination, error) {
	const q = `SELECT examination_id, date, time, patient_id, examination_type_id,
		examiner_billing_id, room_id, notes
		FROM examinations WHERE date = @date`

	result, err := c.ExecuteSQL(ctx, q, map[string]any{"date": FormatDate(date)})
	if err != nil {
		return nil, err
	}

	exams := make([]Examination, 0, len(result.Rows))
	for _, row := range result.Rows {
		exams = append(exams, Examination{
			ExaminationID:     utils.ToInt(row["examination_id"]),
			Date:              utils.ToString(row["date"]),
			Time:              utils.ToString(row["time"]),
			PatientID:         utils.ToInt(row["patient_id"]),
			ExaminationTypeID: utils.ToInt(row["examination_type_id"]),
			ExaminerBillingID: utils.ToInt(row["examiner_billing_id"]),
			RoomID:            utils.ToInt(row["room_id"]),
			Notes:             utils.ToString(row["notes"]),
		})
	}
	return exams, nil
}

func (c *httpClient) QueryPatientByCode(ctx context.Context, code string) (*Patient, error) {
	const q = `SELECT patient_id, code, surname, given_name, birth_date
		FROM patients WHERE code = @code`

	result, err := c.ExecuteSQL(ctx, q, map[string]any{"code": code})
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return patientFromRow(result.Rows[0]), nil
}

func (c *httpClient) QueryPatientByName(ctx context.Context, surname, givenName, birthDate string) (*Patient, error) {
	const q = `SELECT patient_id, code, surname, given_name, birth_date
		FROM patients WHERE surname = @surname AND given_name = @given_name
		AND birth_date = @birth_date`

	result, err := c.ExecuteSQL(ctx, q, map[string]any{
		"surname":    surname,
		"given_name": givenName,
		"birth_date": birthDate,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, ErrNotFound
	}
	return patientFromRow(result.Rows[0]), nil
}

func (c *httpClient) MaxPatientCode(ctx context.Context) (int, error) {
	// Codes are stored as text; cast before aggregating so "0999999" style
	// values compare numerically.
	const q = `SELECT MAX(CAST(code AS UNSIGNED)) AS max_code FROM patients
		WHERE code REGEXP '^[0-9]+$'`

	result, err := c.ExecuteSQL(ctx, q, nil)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	return utils.ToInt(result.Rows[0]["max_code"]), nil
}

func (c *httpClient) InsertPatient(ctx context.Context, p NewPatient) error {
	_, err := c.Upsert(ctx, UpsertRequest{
		Table: "patients",
		SearchFields: map[string]any{
			"code": p.Code,
		},
		UpdateFields: map[string]any{
			"code":             p.Code,
			"surname":          p.Surname,
			"given_name":       p.GivenName,
			"birth_date":       p.BirthDate,
			"insurance_number": p.InsuranceNumber,
		},
		KeyFields: []string{"code"},
	})
	return err
}

func (c *httpClient) LoadExaminationTypes(ctx context.Context) ([]ExaminationType, error) {
	const q = `SELECT examination_type_id, name, external_codes
		FROM examination_types WHERE external_codes IS NOT NULL AND external_codes <> ''`

	result, err := c.ExecuteSQL(ctx, q, nil)
	if err != nil {
		return nil, err
	}

	types := make([]ExaminationType, 0, len(result.Rows))
	for _, row := range result.Rows {
		et := ExaminationType{
			ExaminationTypeID: utils.ToInt(row["examination_type_id"]),
			Name:              utils.ToString(row["name"]),
		}
		raw := utils.ToString(row["external_codes"])
		if err := json.Unmarshal([]byte(raw), &et.ExternalCodes); err != nil {
			return nil, fmt.Errorf("store: examination type %d has malformed external codes %q: %w",
				et.ExaminationTypeID, raw, err)
		}
		types = append(types, et)
	}
	return types, nil
}

func (c *httpClient) InsertExamination(ctx context.Context, e Examination) error {
	const q = `INSERT INTO examinations
		(date, time, patient_id, examination_type_id, examiner_billing_id, room_id,
		 notes, referrer_id, xray, heart_team, material_cost, drg_id)
		VALUES (@date, @time, @patient_id, @examination_type_id, @examiner_billing_id,
		 @room_id, @notes, @referrer_id, @xray, @heart_team, @material_cost, @drg_id)`

	_, err := c.ExecuteSQL(ctx, q, map[string]any{
		"date":                e.Date,
		"time":                e.Time,
		"patient_id":          e.PatientID,
		"examination_type_id": e.ExaminationTypeID,
		"examiner_billing_id": e.ExaminerBillingID,
		"room_id":             e.RoomID,
		"notes":               e.Notes,
		"referrer_id":         DefaultReferrerID,
		"xray":                DefaultXRay,
		"heart_team":          DefaultHeartTeam,
		"material_cost":       DefaultMaterialCost,
		"drg_id":              DefaultDRGID,
	})
	return err
}

func (c *httpClient) UpdateExamination(ctx context.Context, id int, timeOfDay, notes string) error {
	const q = `UPDATE examinations SET time = @time, notes = @notes
		WHERE examination_id = @examination_id`

	_, err := c.ExecuteSQL(ctx, q, map[string]any{
		"time":           timeOfDay,
		"notes":          notes,
		"examination_id": id,
	})
	return err
}

func (c *httpClient) DeleteExamination(ctx context.Context, id int) error {
	const q = `DELETE FROM examinations WHERE examination_id = @examination_id`

	_, err := c.ExecuteSQL(ctx, q, map[string]any{"examination_id": id})
	return err
}

func patientFromRow(row map[string]any) *Patient {
	return &Patient{
		PatientID: utils.ToInt(row["patient_id"]),
		Code:      utils.ToString(row["code"]),
		Surname:   utils.ToString(row["surname"]),
		GivenName: utils.ToString(row["given_name"]),
		BirthDate: utils.ToString(row["birth_date"]),
	}
}
