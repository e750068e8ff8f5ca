package opportunity

import (
	"sort"
	"strings"

	"github.com/docutag/linkscout/models"
)

// RankedTask is a task annotated with its opportunity score
type RankedTask struct {
	models.Task
	OpportunityScore float64 `json:"opportunity_score"`
}

// Column is one status column of a task board
type Column struct {
	Status models.TaskStatus `json:"status"`
	Tasks  []RankedTask      `json:"tasks"`
}

// Rank scores tasks and orders them by score descending, then title ascending
func Rank(tasks []models.Task) []RankedTask {
	ranked := make([]RankedTask, 0, len(tasks))
	for _, task := range tasks {
		ranked = append(ranked, RankedTask{
			Task:             task,
			OpportunityScore: Score(InputFromTask(task)),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].OpportunityScore != ranked[j].OpportunityScore {
			return ranked[i].OpportunityScore > ranked[j].OpportunityScore
		}
		return strings.Compare(ranked[i].Title, ranked[j].Title) < 0
	})

	return ranked
}

// Board groups ranked tasks into one column per known status, in board order.
// Tasks with an unrecognized status land in the OPEN column.
func Board(tasks []models.Task) []Column {
	byStatus := make(map[models.TaskStatus][]RankedTask, len(models.TaskStatuses))
	for _, task := range Rank(tasks) {
		status := task.Status
		if !status.Valid() {
			status = models.TaskStatusOpen
		}
		byStatus[status] = append(byStatus[status], task)
	}

	columns := make([]Column, 0, len(models.TaskStatuses))
	for _, status := range models.TaskStatuses {
		column := Column{Status: status, Tasks: byStatus[status]}
		if column.Tasks == nil {
			column.Tasks = []RankedTask{}
		}
		columns = append(columns, column)
	}
	return columns
}
