package archive

// Queue is a bounded hand-off between the sync path and the archive worker.
// Enqueue never blocks; a full queue drops the job.
type Queue struct {
	jobs chan Job
}

// NewQueue creates a queue holding up to size jobs. A size below 1 is
// treated as 1.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{jobs: make(chan Job, size)}
}

// Enqueue offers job to the queue and reports whether it was accepted.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

// Jobs returns the receive side for the worker.
func (q *Queue) Jobs() <-chan Job {
	return q.jobs
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}
