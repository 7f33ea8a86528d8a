package simulation

import "github.com/nvandessel/memtrace/internal/dist"

// Event is the category chosen for one scheduler step.
type Event int

const (
	EventFetch Event = iota
	EventStack
	EventHeap
	EventAllocate
	EventFree
	EventSwitch
)

func (e Event) String() string {
	switch e {
	case EventFetch:
		return "fetch"
	case EventStack:
		return "stack"
	case EventHeap:
		return "heap"
	case EventAllocate:
		return "allocate"
	case EventFree:
		return "free"
	case EventSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// EventTable maps a step draw to an event category.
var EventTable = dist.Table[Event]{
	{UpTo: 0.30, Outcome: EventFetch},
	{UpTo: 0.60, Outcome: EventStack},
	{UpTo: 0.90, Outcome: EventHeap},
	{UpTo: 0.98, Outcome: EventAllocate},
	{UpTo: 0.99, Outcome: EventFree},
	{UpTo: 1.00, Outcome: EventSwitch},
}
