package main

import (
	"errors"

	"geeo.io/QuadServer/quad"
)

// JSONChangeMessage tags update messages sent to clients
type JSONChangeMessage interface{}

// JSONCommand holds WS messages
type JSONCommand struct {
	Insert       *quad.Point[float64]  `json:"insert"`
	InsertBatch  []quad.Point[float64] `json:"insertBatch"`
	Query        *quad.Rect[float64]   `json:"query"`
	ViewPosition *quad.Rect[float64]   `json:"viewPosition"`
}

func (j *JSONCommand) check() error {
	if j.Query != nil && !j.Query.Valid() {
		return errors.New("Invalid query")
	}
	if j.ViewPosition != nil && !j.ViewPosition.Valid() {
		return errors.New("Invalid viewPosition")
	}
	if j.Insert == nil && j.InsertBatch == nil && j.Query == nil && j.ViewPosition == nil {
		return errors.New("Empty command")
	}
	return nil
}

func (j *JSONCommand) clear() {
	j.Insert = nil
	j.InsertBatch = nil
	j.Query = nil
	j.ViewPosition = nil
}

// points returns Insert and InsertBatch as one slice
func (j *JSONCommand) points() []quad.Point[float64] {
	if j.Insert == nil {
		return j.InsertBatch
	}
	return append([]quad.Point[float64]{*j.Insert}, j.InsertBatch...)
}

// JSONError is the body of every error answer, over HTTP or WS
type JSONError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// JSONInsert is the body of POST /v1/points: a single point or a batch
type JSONInsert struct {
	X      *float64              `json:"x"`
	Y      *float64              `json:"y"`
	Points []quad.Point[float64] `json:"points"`
}

func (j *JSONInsert) points() []quad.Point[float64] {
	if j.X == nil || j.Y == nil {
		return j.Points
	}
	return append([]quad.Point[float64]{quad.NewPoint(*j.X, *j.Y)}, j.Points...)
}

// JSONInsertResult answers inserts
type JSONInsertResult struct {
	Inserted int `json:"inserted"`
	Rejected int `json:"rejected"`
}

// JSONQueryResult answers queries
type JSONQueryResult struct {
	Query   quad.Rect[float64]    `json:"query"`
	Points  []quad.Point[float64] `json:"points"`
	Visited int                   `json:"visited"`
	Pruned  int                   `json:"pruned"`
}

// EnteredLeft is used to provide additional enter/leave information
type EnteredLeft struct {
	Entered bool `json:"entered,omitempty"`
	Left    bool `json:"left,omitempty"`
}

// JSONPointEnteredLeft is sent through the WS when a point enters/leaves a view
type JSONPointEnteredLeft struct {
	Pos quad.Point[float64] `json:"pos"`
	EnteredLeft
}

func enterLeaveMessage(p quad.Point[float64], enter bool) JSONChangeMessage {
	message := &JSONPointEnteredLeft{Pos: p}
	if enter {
		message.Entered = true
	} else {
		message.Left = true
	}
	return message
}
