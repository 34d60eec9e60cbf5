package jobmanager

import "fmt"

// Capacity is the number of jobs a Table can track at once.
const Capacity = 5

// Job is a single slot of a Table. The zero value is a free slot.
type Job struct {
	// Number is the job number shown to the user (slot index + 1), or 0 when
	// the slot is free.
	Number int `json:"number"`

	// PID is the process id of the job, or 0 when the slot is free.
	PID int `json:"pid"`

	State JobState `json:"state"`

	// CommandLine is the text the job was launched with. Display only.
	CommandLine string `json:"command_line"`

	// ID uniquely identifies a single launch, even when job numbers and pids
	// are reused.
	ID string `json:"id"`
}

// Free returns whether the slot holds no job.
func (j *Job) Free() bool {
	return j.State == JobStateFree
}

// Ref returns a reference to the job by pid.
func (j *Job) Ref() Ref {
	return Ref{PID: j.PID}
}

// Table is a fixed capacity registry of Jobs. It holds no locks; the Manager
// serialises access to it.
type Table struct {
	slots [Capacity]Job
}

// FindFree returns the first free slot and the job number it would carry, or
// nil if every slot is occupied.
func (t *Table) FindFree() (*Job, int) {
	for i := range t.slots {
		if t.slots[i].Free() {
			return &t.slots[i], i + 1
		}
	}

	return nil, 0
}

// FindByPID returns the occupied slot running pid, or nil.
func (t *Table) FindByPID(pid int) *Job {
	if pid <= 0 {
		return nil
	}

	for i := range t.slots {
		if !t.slots[i].Free() && t.slots[i].PID == pid {
			return &t.slots[i]
		}
	}

	return nil
}

// FindByNumber returns the occupied slot with job number n, or nil.
func (t *Table) FindByNumber(n int) *Job {
	if n <= 0 {
		return nil
	}

	for i := range t.slots {
		if !t.slots[i].Free() && t.slots[i].Number == n {
			return &t.slots[i]
		}
	}

	return nil
}

// Occupied returns the number of slots holding a job.
func (t *Table) Occupied() int {
	count := 0

	for i := range t.slots {
		if !t.slots[i].Free() {
			count++
		}
	}

	return count
}

// Reset frees the slot. Resetting a free slot is a no-op.
func (t *Table) Reset(j *Job) {
	if j == nil {
		return
	}

	*j = Job{}
}

// Jobs returns a copy of every occupied slot in job number order.
func (t *Table) Jobs() []Job {
	jobs := make([]Job, 0, Capacity)

	for i := range t.slots {
		if !t.slots[i].Free() {
			jobs = append(jobs, t.slots[i])
		}
	}

	return jobs
}

// Verify checks the Table invariants: a slot is free if and only if it has no
// pid and no job number, occupied slots carry their own job number, pids are
// unique and at most one job is running in the foreground.
func (t *Table) Verify() error {
	pids := make(map[int]int, Capacity)
	foreground := 0

	for i := range t.slots {
		j := &t.slots[i]

		if j.Free() {
			if j.PID != 0 || j.Number != 0 {
				return fmt.Errorf(
					"slot %d is free but has pid %d and number %d",
					i, j.PID, j.Number,
				)
			}

			continue
		}

		if j.PID <= 0 {
			return fmt.Errorf("slot %d is %s without a pid", i, j.State)
		}

		if j.Number != i+1 {
			return fmt.Errorf("slot %d has job number %d", i, j.Number)
		}

		if other, exists := pids[j.PID]; exists {
			return fmt.Errorf("pid %d in slots %d and %d", j.PID, other, i)
		}
		pids[j.PID] = i

		if j.State == JobStateForegroundRunning {
			foreground++
		}
	}

	if foreground > 1 {
		return fmt.Errorf("%d foreground jobs", foreground)
	}

	return nil
}
