package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ggnhomes/server/internal/geocoding"
)

type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (*geocoding.Address, error) {
	args := m.Called(lat, lon)
	if addr, ok := args.Get(0).(*geocoding.Address); ok {
		return addr, args.Error(1)
	}
	return nil, args.Error(1)
}

type failingGeolocator struct{ err error }

func (f failingGeolocator) CurrentPosition(context.Context) (float64, float64, error) {
	return 0, 0, f.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "x", FirstNonEmpty(" x "))
	assert.Equal(t, "", FirstNonEmpty())
	assert.Equal(t, "", FirstNonEmpty("", " "))
}

func TestBuildFix(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		address  geocoding.Address
		area     string
		city     string
		expected []string
	}{
		{
			name: "Gurgaon sector",
			address: geocoding.Address{
				Suburb: "Sector 56", City: "Gurugram", StateDistrict: "Gurugram", State: "Haryana",
			},
			area:     "Sector 56",
			city:     "Gurugram",
			expected: []string{"Sector 56", "Gurugram", "Haryana"},
		},
		{
			name:     "Neighbourhood when suburb missing",
			address:  geocoding.Address{Neighbourhood: "Rohini", Town: "Delhi", State: "Delhi"},
			area:     "Rohini",
			city:     "Delhi",
			expected: []string{"Rohini", "Delhi"},
		},
		{
			name:     "Village serves both facets",
			address:  geocoding.Address{Village: "Badshahpur", County: "Sohna", State: "Haryana"},
			area:     "Badshahpur",
			city:     "Badshahpur",
			expected: []string{"Badshahpur", "Sohna", "Haryana"},
		},
		{
			name:     "Only state",
			address:  geocoding.Address{State: "Haryana"},
			area:     "Haryana",
			city:     "Haryana",
			expected: []string{"Haryana"},
		},
		{
			name: "Full hierarchy keeps order",
			address: geocoding.Address{
				Suburb: "A", City: "B", Village: "C", CityDistrict: "D", County: "E", StateDistrict: "F", State: "G",
			},
			area:     "A",
			city:     "B",
			expected: []string{"A", "B", "C", "D", "E", "F", "G"},
		},
		{
			name:     "Case-insensitive duplicates collapse",
			address:  geocoding.Address{Suburb: "Gurgaon", City: "GURGAON", State: "Haryana"},
			area:     "Gurgaon",
			city:     "GURGAON",
			expected: []string{"Gurgaon", "Haryana"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix, ok := BuildFix(28.4, 77.1, tt.address, at)
			require.True(t, ok)
			assert.Equal(t, tt.area, fix.Area)
			assert.Equal(t, tt.city, fix.City)
			assert.Equal(t, tt.expected, fix.Fields)
			assert.Equal(t, at, fix.ResolvedAt)
		})
	}

	_, ok := BuildFix(0, 0, geocoding.Address{}, at)
	assert.False(t, ok)
}

func TestResolver_RequestLocation(t *testing.T) {
	geocoder := &MockGeocoder{}
	geocoder.On("ReverseGeocode", 28.42, 77.10).Return(&geocoding.Address{Suburb: "Sector 56", State: "Haryana"}, nil).Once()
	geocoder.On("ReverseGeocode", 28.50, 77.20).Return(nil, errors.New("timeout")).Once()

	r := NewResolver(Coordinates{Latitude: 28.42, Longitude: 77.10}, geocoder, time.Second, quietLogger())
	assert.Nil(t, r.Current())

	fix, err := r.RequestLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Sector 56", "Haryana"}, fix.Fields)
	assert.Same(t, fix, r.Current())

	// A failed cycle keeps the previous fix
	_, err = r.ResolveWith(context.Background(), Coordinates{Latitude: 28.50, Longitude: 77.20})
	assert.ErrorIs(t, err, ErrGeocodeFailure)
	assert.Same(t, fix, r.Current())

	geocoder.AssertExpectations(t)
}

func TestResolver_ReplacesFixWholesale(t *testing.T) {
	geocoder := &MockGeocoder{}
	geocoder.On("ReverseGeocode", 1.0, 1.0).Return(&geocoding.Address{Suburb: "Old", City: "Town", State: "S"}, nil)
	geocoder.On("ReverseGeocode", 2.0, 2.0).Return(&geocoding.Address{State: "S"}, nil)

	r := NewResolver(nil, geocoder, 0, quietLogger())
	_, err := r.ResolveWith(context.Background(), Coordinates{Latitude: 1, Longitude: 1})
	require.NoError(t, err)

	fix, err := r.ResolveWith(context.Background(), Coordinates{Latitude: 2, Longitude: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"S"}, r.Current().Fields)
	assert.Same(t, fix, r.Current())
}

func TestResolver_Errors(t *testing.T) {
	geocoder := &MockGeocoder{}
	geocoder.On("ReverseGeocode", 0.0, 0.0).Return(&geocoding.Address{}, nil)

	r := NewResolver(Denied{}, geocoder, 0, quietLogger())
	_, err := r.RequestLocation(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = r.ResolveWith(context.Background(), failingGeolocator{err: errors.New("no gps")})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = r.ResolveWith(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	// Nothing resolved at any level
	_, err = r.ResolveWith(context.Background(), Coordinates{})
	assert.ErrorIs(t, err, ErrGeocodeFailure)
	assert.Nil(t, r.Current())
	geocoder.AssertNotCalled(t, "ReverseGeocode", 1.0, 1.0)
}
