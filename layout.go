package tiledbcore

import "fmt"

// ArrayType distinguishes dense from sparse arrays (spec §3).
type ArrayType uint8

const (
	Dense ArrayType = iota + 1
	Sparse
)

func (t ArrayType) String() string {
	switch t {
	case Dense:
		return "DENSE"
	case Sparse:
		return "SPARSE"
	default:
		return fmt.Sprintf("ArrayType(%d)", uint8(t))
	}
}

// Order is used for both an array's cell order and tile order (spec §3).
type Order uint8

const (
	RowMajor Order = iota + 1
	ColMajor
)

func (o Order) String() string {
	switch o {
	case RowMajor:
		return "ROW_MAJOR"
	case ColMajor:
		return "COL_MAJOR"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

// Layout is the requested output/input ordering for a query (spec §4.7,
// §4.8). It extends Order with the two query-only orderings.
type Layout uint8

const (
	LayoutRowMajor Layout = iota + 1
	LayoutColMajor
	LayoutGlobalOrder
	LayoutUnordered
)

func (l Layout) String() string {
	switch l {
	case LayoutRowMajor:
		return "ROW_MAJOR"
	case LayoutColMajor:
		return "COL_MAJOR"
	case LayoutGlobalOrder:
		return "GLOBAL_ORDER"
	case LayoutUnordered:
		return "UNORDERED"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// QueryType is the direction of a Query (spec §6 query_new).
type QueryType uint8

const (
	QueryRead QueryType = iota + 1
	QueryWrite
)

func (t QueryType) String() string {
	switch t {
	case QueryRead:
		return "READ"
	case QueryWrite:
		return "WRITE"
	default:
		return fmt.Sprintf("QueryType(%d)", uint8(t))
	}
}

// QueryStatus is the result of Query.Submit (spec §6, §4.7).
type QueryStatus uint8

const (
	StatusUninitialized QueryStatus = iota
	StatusInProgress
	StatusCompleted
	StatusIncomplete
	StatusFailed
)

func (s QueryStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusIncomplete:
		return "INCOMPLETE"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("QueryStatus(%d)", uint8(s))
	}
}

// OpenMode is the mode an Array is opened in (spec §3 Array lifecycle).
type OpenMode uint8

const (
	OpenRead OpenMode = iota + 1
	OpenWrite
)

func (m OpenMode) String() string {
	switch m {
	case OpenRead:
		return "READ"
	case OpenWrite:
		return "WRITE"
	default:
		return fmt.Sprintf("OpenMode(%d)", uint8(m))
	}
}
