package planner

import (
	"slices"
	"sync"

	"github.com/golang/geo/r2"
)

// WaypointQueue is the ordered list of positions a robot still has to visit.
type WaypointQueue struct {
	mu     sync.Mutex
	points []r2.Point
}

// NewWaypointQueue returns a queue visiting points in order.
func NewWaypointQueue(points []r2.Point) *WaypointQueue {
	return &WaypointQueue{points: slices.Clone(points)}
}

// Front returns the active waypoint.
func (q *WaypointQueue) Front() (r2.Point, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.points) == 0 {
		return r2.Point{}, false
	}
	return q.points[0], true
}

// Pop drops the active waypoint and reports whether one was dropped.
func (q *WaypointQueue) Pop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.points) == 0 {
		return false
	}
	q.points = q.points[1:]
	return true
}

// Replace swaps the remaining waypoints.
func (q *WaypointQueue) Replace(points []r2.Point) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.points = slices.Clone(points)
}

// Len returns the number of waypoints left.
func (q *WaypointQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.points)
}

// Points returns a copy of the remaining waypoints.
func (q *WaypointQueue) Points() []r2.Point {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.points)
}
