package jobmanager

type JobState int

const (
	// JobStateFree indicates the slot holds no job. It's the zero value so an
	// empty Job is a free slot.
	JobStateFree JobState = iota

	// JobStateForegroundRunning indicates the job is running and the shell is
	// blocked waiting for it. At most one job is in this state.
	JobStateForegroundRunning

	// JobStateBackgroundRunning indicates the job is running without the shell
	// waiting for it.
	JobStateBackgroundRunning

	// JobStateStopped indicates the job has been suspended and can be resumed
	// with fg or bg.
	JobStateStopped
)

// NOTE: This slice needs to be kept in sync with any changes to the JobState
// values. The strings are what the jobs listing prints.
var jobStates = []string{
	"Free",
	"Foreground/Running",
	"Background/Running",
	"Stopped",
}

// String implements the Stringer interface for JobState and returns a string
// representation of the JobState by using the int value to index into a slice.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// MarshalText lets JobState render as its display string in JSON.
func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
