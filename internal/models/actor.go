package models

// Actor is whoever asked for a change. Staff may act on other users' records.
type Actor struct {
	UserID int64
	Staff  bool
}
