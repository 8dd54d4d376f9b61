package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/63Paulo/lan-party/internal/model"
)

func TestWrite(t *testing.T) {
	start := time.Date(2026, 9, 12, 14, 0, 0, 0, time.UTC)
	reservations := []model.Reservation{
		{ID: 1, Code: "a1", StationID: 1, UserID: 7, StartTime: start, EndTime: start.Add(2 * time.Hour), Status: model.StatusConfirmed},
		{ID: 2, Code: "b2", StationID: 2, UserID: 8, StartTime: start.Add(3 * time.Hour), EndTime: start.Add(4 * time.Hour), Status: model.StatusPending},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, reservations))
	require.NotZero(t, buf.Len())

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows("Reservations")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "confirmed", rows[1][6])
	assert.Equal(t, "b2", rows[2][1])
}

func TestWrite_EmptyLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))

	file, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows("Reservations")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
