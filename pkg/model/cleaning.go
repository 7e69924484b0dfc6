// pkg/model/cleaning.go
package model

// CleaningOperation records a single cell that had to be coerced while
// building a document
type CleaningOperation struct {
	TableID       TableID // Table the cell came from
	Organisation  string  // Organisation code of the row
	Label         string  // Column or row label of the cell
	OriginalValue string  // Raw cell text
	NewValue      float64 // Value used after cleaning
	Operation     string  // e.g. "zero_fill", "separator_strip"
	Reason        string  // e.g. "blank", "sentinel", "non_numeric"
}

// CleaningContext carries the location of a cell being cleaned
type CleaningContext struct {
	TableID      TableID
	Organisation string
	Label        string
}
