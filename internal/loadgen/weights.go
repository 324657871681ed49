package loadgen

import (
	"math/rand"
	"sort"
)

// taskPicker selects tasks proportionally to their weights. It is owned by a
// single virtual user and is not safe for concurrent use.
type taskPicker struct {
	tasks       []Task
	cumulative  []int
	totalWeight int
	rnd         *rand.Rand
}

func newTaskPicker(tasks []Task, seed int64) (*taskPicker, error) {
	p := &taskPicker{rnd: rand.New(rand.NewSource(seed))}

	for _, t := range tasks {
		if t.Weight <= 0 || t.Run == nil {
			continue
		}
		p.totalWeight += t.Weight
		p.tasks = append(p.tasks, t)
		p.cumulative = append(p.cumulative, p.totalWeight)
	}

	if p.totalWeight == 0 {
		return nil, ErrNoTasks
	}
	return p, nil
}

func (p *taskPicker) pick() Task {
	if len(p.tasks) == 1 {
		return p.tasks[0]
	}
	target := p.rnd.Intn(p.totalWeight)
	i := sort.SearchInts(p.cumulative, target+1)
	return p.tasks[i]
}
