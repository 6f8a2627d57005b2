package main

import "geeo.io/QuadServer/quad"

// View is a websocket consumer watching a rect of the index
type View struct {
	id   *string
	ws   *wsConn
	rect *quad.Rect[float64]
}

// GetRect gets the watched rect, nil until the view is positioned
func (v *View) GetRect() *quad.Rect[float64] {
	return v.rect
}

// SetRect sets the watched rect
func (v *View) SetRect(r *quad.Rect[float64]) {
	v.rect = r
}
