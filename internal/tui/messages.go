package tui

// TickMsg triggers a poll of the board
type TickMsg struct{}

// DoneMsg signals that the run finished; the model prints what is left and quits
type DoneMsg struct{}
