package main

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// fakeRow feeds canned column values into scanProfileRow.
type fakeRow struct {
	values []any
}

func (f *fakeRow) Scan(dest ...any) error {
	type nullScanner interface{ Scan(value any) error }
	for i, d := range dest {
		if i >= len(f.values) {
			continue
		}
		v := f.values[i]
		// The sql.Null* targets accept nil; plain targets only get
		// concrete values.
		if s, ok := d.(nullScanner); ok {
			_ = s.Scan(v)
			continue
		}
		if v == nil {
			continue
		}
		switch p := d.(type) {
		case *int:
			p2, _ := v.(int)
			*p = p2
		case *string:
			p2, _ := v.(string)
			*p = p2
		case *[]byte:
			switch b := v.(type) {
			case []byte:
				*p = b
			case string:
				*p = []byte(b)
			}
		}
	}
	return nil
}

func TestScanProfileRow(t *testing.T) {
	// Columns: user_id, display_name, age, profile_picture_file,
	// preferences, preferred_lat, preferred_lng, search_radius_km, is_complete
	row := &fakeRow{values: []any{
		7, "Mari", int64(29), "7.jpg",
		[]byte(`{"type":"conversational","semanticTags":["night_owl","very_clean"]}`),
		59.437, 24.7536, 25.0, true,
	}}

	p, err := scanProfileRow(row)
	require.NoError(t, err)
	require.Equal(t, 7, p.UserID)
	require.Equal(t, "Mari", p.DisplayName)
	require.Equal(t, 29, p.Age)
	require.NotNil(t, p.Preferences)
	require.Equal(t, PreferencesConversational, p.Preferences.Type)
	require.Equal(t, []string{"night_owl", "very_clean"}, p.Preferences.SemanticTags)
	require.NotNil(t, p.PreferredLocation)
	require.InDelta(t, 59.437, p.PreferredLocation.Lat, 1e-9)
	require.Equal(t, 25.0, p.SearchRadiusKm)
	require.True(t, p.IsComplete)
}

func TestScanProfileRowDefaults(t *testing.T) {
	// No preferences, no location, no radius.
	row := &fakeRow{values: []any{
		8, "", nil, nil,
		nil, nil, nil, nil, nil,
	}}

	p, err := scanProfileRow(row)
	require.NoError(t, err)
	require.Nil(t, p.Preferences)
	require.Nil(t, p.PreferredLocation)
	require.Equal(t, defaultSearchRadiusKm, p.SearchRadiusKm)
	require.False(t, p.IsComplete)
}

func TestScanProfileRowRejectsUntypedPreferences(t *testing.T) {
	row := &fakeRow{values: []any{
		9, "Pat", nil, nil,
		[]byte(`{"semanticTags":["x"]}`), nil, nil, nil, nil,
	}}

	p, err := scanProfileRow(row)
	require.NoError(t, err)
	// A preferences blob without a type discriminator is ignored.
	require.Nil(t, p.Preferences)
}

func TestScanProfileRowUsesConfiguredRadiusDefault(t *testing.T) {
	old := searchRadiusDefaultKm
	searchRadiusDefaultKm = 25
	defer func() { searchRadiusDefaultKm = old }()

	row := &fakeRow{values: []any{
		8, "", nil, nil,
		nil, nil, nil, nil, nil,
	}}

	p, err := scanProfileRow(row)
	require.NoError(t, err)
	require.Equal(t, 25.0, p.SearchRadiusKm)
}

func TestProfileBatchFnReportsIterationErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"user_id", "display_name", "age", "profile_picture_file",
		"preferences", "preferred_lat", "preferred_lng", "search_radius_km", "is_complete",
	}).
		AddRow(1, "Mari", nil, nil, nil, nil, nil, nil, nil).
		RowError(0, errors.New("connection reset"))
	mock.ExpectQuery(`SELECT user_id, display_name`).WillReturnRows(rows)

	results := profileBatchFn(db)(context.Background(), []int{1, 2})
	require.Len(t, results, 2)
	for _, res := range results {
		// An aborted cursor must surface as an error, never as a
		// silently missing profile.
		require.Nil(t, res.Data)
		require.Error(t, res.Error)
	}
}
