package router

// Priority partitions outbound/inbound traffic into four independent lanes,
// each backed by its own ring.Queue and (for outbound) its own sender
// goroutine, per spec.md §3's PriorityQueueContainer.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low

	numPriorities = 4
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// DefaultCapacities mirrors original_source's PriorityQueueContainer
// constructor (2048/2048/1024/512), indexed by Priority.
var DefaultCapacities = [numPriorities]int{
	Critical: 2048,
	High:     2048,
	Medium:   1024,
	Low:      512,
}
