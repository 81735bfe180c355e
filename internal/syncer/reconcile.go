package syncer

import "eacal/internal/lesson"

// Plan is the set of calendar mutations that brings the existing lessons
// in line with the fetched ones.
type Plan struct {
	// ToDelete holds existing lessons no fetched lesson matches.
	ToDelete []lesson.Lesson
	// ToAdd holds fetched lessons no existing lesson matches.
	ToAdd []lesson.Lesson
	// Unchanged holds existing lessons a fetched lesson matches.
	Unchanged []lesson.Lesson
}

// Empty reports whether the plan has no mutations.
func (p Plan) Empty() bool {
	return len(p.ToDelete) == 0 && len(p.ToAdd) == 0
}

// Reconcile diffs fetched against existing using lesson.Lesson.Same. Both
// scans use the same identity rule, so applying the plan and reconciling
// again yields an empty plan. Neither input is modified.
func Reconcile(fetched, existing []lesson.Lesson) Plan {
	var plan Plan

	for _, ex := range existing {
		if containsSame(fetched, ex) {
			plan.Unchanged = append(plan.Unchanged, ex)
			continue
		}
		plan.ToDelete = append(plan.ToDelete, ex)
	}

	for _, l := range fetched {
		if !containsSame(existing, l) {
			plan.ToAdd = append(plan.ToAdd, l)
		}
	}

	return plan
}

func containsSame(lessons []lesson.Lesson, l lesson.Lesson) bool {
	for _, other := range lessons {
		if other.Same(l) {
			return true
		}
	}
	return false
}
