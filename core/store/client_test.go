package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *httpClient {
	t.Helper()
	c := NewClient(Config{
		BaseURL:        "http://proxy.test",
		Database:       "clinic",
		TimeoutSeconds: 5,
		Retries:        3,
	}).(*httpClient)
	httpmock.ActivateNonDefault(c.http)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestExecuteSQLSendsParameterizedPayload(t *testing.T) {
	c := newTestClient(t)

	var captured map[string]any
	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
			return httpmock.NewJsonResponse(200, QueryResult{
				Success:  true,
				Rows:     []map[string]any{{"patient_id": 42}},
				RowCount: 1,
			})
		})

	result, err := c.ExecuteSQL(context.Background(),
		"SELECT patient_id FROM patients WHERE code = @code",
		map[string]any{"code": "0001234"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount)

	assert.Equal(t, "clinic", captured["database"])
	params, ok := captured["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0001234", params["code"])
	assert.NotContains(t, captured["sql"], "0001234")
}

func TestExecuteSQLProxyRejection(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		httpmock.NewJsonResponderOrPanic(200, QueryResult{Success: false, Error: "syntax error"}))

	_, err := c.ExecuteSQL(context.Background(), "SELECT", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestExecuteSQLRetriesTransportFailures(t *testing.T) {
	c := newTestClient(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("connection refused")
			}
			return httpmock.NewJsonResponse(200, QueryResult{Success: true})
		})

	_, err := c.ExecuteSQL(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteSQLGivesUpAfterRetries(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := c.ExecuteSQL(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestUpsertFillsDatabaseAndDecodesOperation(t *testing.T) {
	c := newTestClient(t)

	var captured UpsertRequest
	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/upsert_data",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
			return httpmock.NewJsonResponse(200, UpsertResult{Success: true, OperationCode: OpInserted, ID: 7})
		})

	result, err := c.Upsert(context.Background(), UpsertRequest{
		Table:        "patients",
		SearchFields: map[string]any{"code": "0001234"},
		UpdateFields: map[string]any{"code": "0001234", "surname": "Meier"},
		KeyFields:    []string{"code"},
	})
	require.NoError(t, err)
	assert.Equal(t, OpInserted, result.OperationCode)
	assert.Equal(t, 7, result.ID)
	assert.Equal(t, "clinic", captured.Database)
}

func TestQueryExaminationsByDateDecodesRows(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		httpmock.NewJsonResponderOrPanic(200, QueryResult{
			Success: true,
			Rows: []map[string]any{
				{
					"examination_id":      "101",
					"date":                "20.08.2025",
					"time":                "09:30",
					"patient_id":          55,
					"examination_type_id": 24,
					"examiner_billing_id": 3,
					"room_id":             2,
					"notes":               "followup",
				},
			},
			RowCount: 1,
		}))

	exams, err := c.QueryExaminationsByDate(context.Background(),
		time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, 101, exams[0].ExaminationID)
	assert.Equal(t, "20.08.2025", exams[0].Date)
	assert.Equal(t, "09:30", exams[0].Time)
	assert.Equal(t, 55, exams[0].PatientID)
	assert.Equal(t, 24, exams[0].ExaminationTypeID)
}

func TestQueryPatientByCodeNotFound(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		httpmock.NewJsonResponderOrPanic(200, QueryResult{Success: true, Rows: []map[string]any{}}))

	_, err := c.QueryPatientByCode(context.Background(), "0009999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadExaminationTypesParsesExternalCodes(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		httpmock.NewJsonResponderOrPanic(200, QueryResult{
			Success: true,
			Rows: []map[string]any{
				{"examination_type_id": 24, "name": "Echo", "external_codes": "[24, 31]"},
			},
		}))

	types, err := c.LoadExaminationTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, []int{24, 31}, types[0].ExternalCodes)
}

func TestLoadExaminationTypesRejectsMalformedCodes(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		httpmock.NewJsonResponderOrPanic(200, QueryResult{
			Success: true,
			Rows: []map[string]any{
				{"examination_type_id": 24, "name": "Echo", "external_codes": "24,31"},
			},
		}))

	_, err := c.LoadExaminationTypes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed external codes")
}

func TestInsertExaminationCarriesAdministrativeDefaults(t *testing.T) {
	c := newTestClient(t)

	var captured map[string]any
	httpmock.RegisterResponder(http.MethodPost, "http://proxy.test/tools/execute_sql",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
			return httpmock.NewJsonResponse(200, QueryResult{Success: true})
		})

	err := c.InsertExamination(context.Background(), Examination{
		Date:              "20.08.2025",
		Time:              "10:00",
		PatientID:         55,
		ExaminationTypeID: 24,
		ExaminerBillingID: 3,
		RoomID:            2,
	})
	require.NoError(t, err)

	params, ok := captured["params"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, DefaultReferrerID, params["referrer_id"])
	assert.EqualValues(t, DefaultXRay, params["xray"])
	assert.EqualValues(t, DefaultHeartTeam, params["heart_team"])
	assert.EqualValues(t, DefaultMaterialCost, params["material_cost"])
	assert.EqualValues(t, DefaultDRGID, params["drg_id"])
}

func TestFormatAndParseDate(t *testing.T) {
	day := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "20.08.2025", FormatDate(day))

	parsed, err := ParseDate("20.08.2025")
	require.NoError(t, err)
	assert.Equal(t, day, parsed)

	_, err = ParseDate("2025-08-20")
	assert.Error(t, err)
}
