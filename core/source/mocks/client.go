package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"clinic-sync/core/source"
)

// Client is a mock implementation of source.Client
type Client struct {
	mock.Mock
}

func (m *Client) SearchAppointments(ctx context.Context, q source.SearchQuery) ([]source.Appointment, error) {
	args := m.Called(ctx, q)
	if res, ok := args.Get(0).([]source.Appointment); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) GetPatient(ctx context.Context, code string) (*source.Patient, error) {
	args := m.Called(ctx, code)
	if res, ok := args.Get(0).(*source.Patient); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}
