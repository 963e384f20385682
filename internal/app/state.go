package app

// AppState represents the different views/modes of the application.
type AppState int

const (
	Running AppState = iota
	Finished
	ShowError
	Exiting
)
