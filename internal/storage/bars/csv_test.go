package bars

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/cta/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := `datetime,open,high,low,close,volume
2024-01-02,3650,3680,3640,3670,12000
2024-01-03 00:00:00, 3670, 3700, 3660, 3690, 9000

20240104,3690,3695,3600,3610,15000
`
	got, err := ReadCSV(strings.NewReader(in), "rb", core.IntervalDaily)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, day0, got[0].Time)
	assert.Equal(t, 3670.0, got[0].Close)
	assert.Equal(t, 3690.0, got[1].Close)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), got[2].Time)
	assert.Equal(t, 15000.0, got[2].Volume)
	assert.Equal(t, "rb", got[2].Symbol)
	assert.Equal(t, core.IntervalDaily, got[2].Interval)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"bad number", "2024-01-02,3650,x,3640,3670,1\n"},
		{"short row", "2024-01-02,3650,3680\n"},
		{"high below low", "2024-01-02,3650,3600,3640,3620,1\n"},
		{"bad time after header", "datetime,o,h,l,c,v\nyesterday,1,1,1,1,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in), "rb", core.IntervalDaily)
			assert.True(t, errors.Is(err, core.ErrInvalidData), "got %v", err)
		})
	}
}

func TestReadTickCSV(t *testing.T) {
	in := `datetime,price,volume,bid,ask
2024-01-02T09:00:00Z,3650,100,3649,3651
2024-01-02T09:00:01Z,3651,104
`
	got, err := ReadTickCSV(strings.NewReader(in), "rb")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 3649.0, got[0].Bid)
	assert.Equal(t, 3651.0, got[0].Ask)
	assert.Equal(t, 104.0, got[1].Volume)
	assert.Zero(t, got[1].Bid)
	assert.Equal(t, day0.Add(9*time.Hour+time.Second), got[1].Time)
}

func TestReadTickCSV_RejectsNonPositivePrice(t *testing.T) {
	_, err := ReadTickCSV(strings.NewReader("2024-01-02,0,1\n"), "rb")
	assert.True(t, errors.Is(err, core.ErrInvalidData))
}
