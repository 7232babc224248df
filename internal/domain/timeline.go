package domain

import "time"

// TimelineEvent одна запись в истории заказа: что произошло, когда и почему.
// История append-only, порядок задаётся полем Occurred.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
