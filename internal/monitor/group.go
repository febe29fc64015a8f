package monitor

import (
	"fmt"

	"github.com/ternarybob/leadwatch/internal/models"
)

// Direction moves through a job group
type Direction string

const (
	Prev Direction = "prev"
	Next Direction = "next"
)

// ParseDirection accepts "prev"/"p" and "next"/"n"
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "prev", "p":
		return Prev, nil
	case "next", "n":
		return Next, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Group is an ordered list of sibling jobs with a cursor.
// It is not safe for concurrent use; owners guard it.
type Group struct {
	jobs  []models.Job
	index int
}

// NewGroup positions the cursor on focalID. A focal job missing from jobs is
// placed first so the job being shown is always part of the group.
func NewGroup(jobs []models.Job, focalID string) *Group {
	g := &Group{jobs: append([]models.Job(nil), jobs...)}
	if focalID == "" {
		return g
	}
	for i, job := range g.jobs {
		if job.ID == focalID {
			g.index = i
			return g
		}
	}
	g.jobs = append([]models.Job{{ID: focalID}}, g.jobs...)
	return g
}

// Len returns the number of jobs in the group
func (g *Group) Len() int {
	return len(g.jobs)
}

// Index returns the cursor position
func (g *Group) Index() int {
	return g.index
}

// Current returns the job under the cursor
func (g *Group) Current() (models.Job, bool) {
	if g.index < 0 || g.index >= len(g.jobs) {
		return models.Job{}, false
	}
	return g.jobs[g.index], true
}

// Jobs returns a copy of the ordered jobs
func (g *Group) Jobs() []models.Job {
	return append([]models.Job(nil), g.jobs...)
}

// Move advances the cursor. At either boundary it is a no-op returning false.
func (g *Group) Move(dir Direction) (models.Job, bool) {
	target := g.index
	switch dir {
	case Prev:
		target--
	case Next:
		target++
	default:
		return models.Job{}, false
	}
	if target < 0 || target >= len(g.jobs) {
		return models.Job{}, false
	}
	g.index = target
	return g.jobs[target], true
}

// Position renders the cursor as "i/n", one-based
func (g *Group) Position() string {
	if len(g.jobs) == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d", g.index+1, len(g.jobs))
}
