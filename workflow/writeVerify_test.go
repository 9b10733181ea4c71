package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stationops_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWrite counts records in a plain map so the attempt walk can run
// without a store behind it.
type fakeWrite struct {
	nextId    int
	records   map[int]bool
	verifyErr error
	writeErr  error
}

func newFakeWrite() *fakeWrite {
	return &fakeWrite{nextId: 100, records: map[int]bool{}}
}

func (w *fakeWrite) Write() (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	w.nextId++
	w.records[w.nextId] = true
	return w.nextId, nil
}

func (w *fakeWrite) Verify(recordId int) error {
	if !w.records[recordId] {
		return errors.New("record vanished before verification")
	}
	return w.verifyErr
}

func (w *fakeWrite) Compensate(recordId int) error {
	delete(w.records, recordId)
	return nil
}

type fakeRecorder struct {
	recordId int
	states   []models.WriteAttemptState
}

func (r *fakeRecorder) SetRecordId(recordId int) { r.recordId = recordId }

func (r *fakeRecorder) Transition(next models.WriteAttemptState, attemptErr error) error {
	r.states = append(r.states, next)
	return nil
}

func TestRunWriteAttemptCommit(t *testing.T) {
	write := newFakeWrite()
	recorder := &fakeRecorder{}

	recordId, err := RunWriteAttempt(write, recorder)
	require.NoError(t, err)

	assert.Equal(t, 101, recordId)
	assert.Equal(t, 101, recorder.recordId)
	assert.Equal(t, []models.WriteAttemptState{
		models.WriteAttemptWritten,
		models.WriteAttemptVerifying,
		models.WriteAttemptCommitted,
	}, recorder.states)
	assert.True(t, write.records[recordId])
}

func TestRunWriteAttemptRollsBackOnVerifyFailure(t *testing.T) {
	write := newFakeWrite()
	write.verifyErr = errors.New("entry missing unit price")
	recorder := &fakeRecorder{}

	recordId, err := RunWriteAttempt(write, recorder)
	require.Error(t, err)

	assert.True(t, errors.Is(err, models.ErrWriteIntegrityFailure))
	assert.Contains(t, err.Error(), "entry missing unit price")
	assert.Zero(t, recordId)
	assert.Equal(t, []models.WriteAttemptState{
		models.WriteAttemptWritten,
		models.WriteAttemptVerifying,
		models.WriteAttemptCompensating,
		models.WriteAttemptRolledBack,
	}, recorder.states)
	// the compensating delete left nothing behind
	assert.Empty(t, write.records)
}

func TestRunWriteAttemptWriteFailureRecordsNothing(t *testing.T) {
	write := newFakeWrite()
	write.writeErr = errors.New("duplicate record for date")
	recorder := &fakeRecorder{}

	recordId, err := RunWriteAttempt(write, recorder)
	require.Error(t, err)

	assert.False(t, errors.Is(err, models.ErrWriteIntegrityFailure))
	assert.Zero(t, recordId)
	assert.Empty(t, recorder.states)
	assert.Empty(t, write.records)
}
