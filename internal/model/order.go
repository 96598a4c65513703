package model

import "sort"

// SortByFinish orders tasks by due instant ascending, earliest first.
// Tasks without a due instant sink to the end; ties keep their original
// relative order so insertion order breaks them.
func SortByFinish(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case !a.HasFinish():
			return false
		case !b.HasFinish():
			return true
		default:
			return a.FinishAt.Before(b.FinishAt)
		}
	})
}

// InsertByFinish places the task before the first element with a strictly
// later due instant, preserving insertion order among equals.
func InsertByFinish(tasks []Task, task Task) []Task {
	pos := len(tasks)
	if task.HasFinish() {
		for i := range tasks {
			if !tasks[i].HasFinish() || tasks[i].FinishAt.After(task.FinishAt) {
				pos = i
				break
			}
		}
	}
	tasks = append(tasks, Task{})
	copy(tasks[pos+1:], tasks[pos:])
	tasks[pos] = task
	return tasks
}
