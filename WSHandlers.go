package main

import (
	set "github.com/deckarep/golang-set"

	"geeo.io/QuadServer/quad"
)

func (wsh *WSRouter) handleInsert(ws *wsConn, source string, points []quad.Point[float64]) {
	accepted := wsh.idx.addPoints(points)
	ws.writeImmediateJSON(JSONInsertResult{Inserted: len(accepted), Rejected: len(points) - len(accepted)})
	wsh.notifyInserted(source, accepted)
}

func (wsh *WSRouter) handleQuery(ws *wsConn, r *quad.Rect[float64]) {
	points, trace := wsh.idx.query(*r)
	ws.writeImmediateJSON(JSONQueryResult{Query: *r, Points: points, Visited: trace.Visited, Pruned: trace.Pruned})
}

// notifyInserted tells the views containing the new points, and the webhook
func (wsh *WSRouter) notifyInserted(source string, points []quad.Point[float64]) {
	if len(points) == 0 {
		return
	}
	for _, p := range points {
		wsh.sendMessageToViews(enterLeaveMessage(p, true), wsh.idx.getViewsWithPoint(p))
	}
	if wsh.whw != nil {
		wsh.whw.Write(HookMessage{Source: source, Points: points})
	}
}

func (wsh *WSRouter) handleViewMove(view *View, pos *quad.Rect[float64]) {
	previousPos, err := wsh.idx.updateViewPosition(view, pos)
	if err != nil {
		log.Error(err)
		return
	}

	viewPointsAfter := wsh.idx.getPointsIn(pos)

	if previousPos == nil {
		sendPoints(view, viewPointsAfter, true)
		return
	}

	viewPointsBefore := wsh.idx.getPointsIn(previousPos)

	removed := viewPointsBefore.Difference(viewPointsAfter)
	added := viewPointsAfter.Difference(viewPointsBefore)

	sendPoints(view, removed, false)
	sendPoints(view, added, true)
}

func sendPoints(view *View, points set.Set, enter bool) {
	for _, each := range points.ToSlice() {
		p, ok := each.(quad.Point[float64])
		if !ok {
			continue
		}
		view.ws.writeJSON(enterLeaveMessage(p, enter))
	}
}

func (wsh *WSRouter) sendMessageToViews(message JSONChangeMessage, consumers set.Set) {
	for _, each := range consumers.ToSlice() {
		if view, ok := each.(*View); ok {
			view.ws.writeJSON(message)
		}
	}
}
