package ply

type state uint

const (
	idle state = iota
	channelOpen
	directivesWritten
	attached
	detaching
	closed
)
