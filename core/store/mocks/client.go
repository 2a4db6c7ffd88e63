package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"clinic-sync/core/store"
)

// Client is a mock implementation of store.Client
type Client struct {
	mock.Mock
}

func (m *Client) ExecuteSQL(ctx context.Context, query string, params map[string]any) (*store.QueryResult, error) {
	args := m.Called(ctx, query, params)
	if res, ok := args.Get(0).(*store.QueryResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) Upsert(ctx context.Context, req store.UpsertRequest) (*store.UpsertResult, error) {
	args := m.Called(ctx, req)
	if res, ok := args.Get(0).(*store.UpsertResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) QueryExaminationsByDate(ctx context.Context, date time.Time) ([]store.Examination, error) {
	args := m.Called(ctx, date)
	if res, ok := args.Get(0).([]store.Examination); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) QueryPatientByCode(ctx context.Context, code string) (*store.Patient, error) {
	args := m.Called(ctx, code)
	if res, ok := args.Get(0).(*store.Patient); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) QueryPatientByName(ctx context.Context, surname, givenName, birthDate string) (*store.Patient, error) {
	args := m.Called(ctx, surname, givenName, birthDate)
	if res, ok := args.Get(0).(*store.Patient); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) MaxPatientCode(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *Client) InsertPatient(ctx context.Context, p store.NewPatient) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *Client) LoadExaminationTypes(ctx context.Context) ([]store.ExaminationType, error) {
	args := m.Called(ctx)
	if res, ok := args.Get(0).([]store.ExaminationType); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) InsertExamination(ctx context.Context, e store.Examination) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *Client) UpdateExamination(ctx context.Context, id int, time, notes string) error {
	args := m.Called(ctx, id, time, notes)
	return args.Error(0)
}

func (m *Client) DeleteExamination(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
