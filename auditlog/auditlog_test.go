package auditlog_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/bravo1goingdark/jobengine/auditlog"
	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendsRowPerTerminalJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	l, err := auditlog.New(path)
	require.NoError(t, err)

	require.NoError(t, l.Record(types.Job{ID: "j1", State: types.Completed}))
	require.NoError(t, l.Record(types.Job{ID: "j2", State: types.Failed, Exception: "boom"}))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "j1", rows[0][0])
	assert.Equal(t, "COMPLETED", rows[0][1])
	assert.Equal(t, "j2", rows[1][0])
	assert.Equal(t, "boom", rows[1][2])
}
