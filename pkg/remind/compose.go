package remind

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/harrisonrobin/tasknudge/pkg/util"
)

const summaryHeader = "🌅 Good morning! Here’s your schedule for today:"

// Composer writes the text of reminders and daily summaries. A Composer may
// fail; the scheduler then falls back to Template.
type Composer interface {
	Reminder(ctx context.Context, task model.Task, minutes int) (string, error)
	Summary(ctx context.Context, owner string, tasks []model.Task, loc *time.Location) (string, error)
}

// Template is the fixed-text Composer. It never fails.
type Template struct{}

func (Template) Reminder(_ context.Context, task model.Task, minutes int) (string, error) {
	return ReminderText(task, minutes), nil
}

func (Template) Summary(_ context.Context, _ string, tasks []model.Task, loc *time.Location) (string, error) {
	return util.SummarizeTasks(summaryHeader, tasks, loc), nil
}

// ReminderText is the minimal reminder. It carries the title only.
func ReminderText(task model.Task, minutes int) string {
	return fmt.Sprintf("⏰ Reminder: '%s' is due in %d minutes.", task.Title, minutes)
}
