package session

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrTooManyRooms  = errors.New("too many active rooms")
	ErrInvalidToken  = errors.New("invalid organizer token")
	ErrCodeExhausted = errors.New("could not allocate a unique room code")
)
