package viewmodel

// Kind declares how a column's values compare when sorting.
type Kind string

const (
	KindText   Kind = "text"
	KindNumber Kind = "number"
)

// Direction is a sort direction for one column.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) flip() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// Column describes one table column. Key addresses the value inside a
// CanonicalRecord (text columns read DisplayName), InitialDir is the
// direction the first SortBy on this column applies, and Hidden marks
// columns that start toggled off.
type Column struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	Kind       Kind      `json:"kind"`
	InitialDir Direction `json:"-"`
	Hidden     bool      `json:"-"`
}
