package store

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

type TaskType string

const (
	TaskAutomation TaskType = "automation"
	TaskReminder   TaskType = "reminder"
	TaskReport     TaskType = "report"
)

type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

type Account struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"` // Compared verbatim; never sent to clients
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// accountRecord is the stored form of Account; the password has to survive the JSON round trip.
type accountRecord struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type UserProfile struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Preferences string `json:"preferences"`
	Avatar      string `json:"avatar,omitempty"`
}

type Visualization struct {
	Type     ChartType        `json:"type"`
	Title    string           `json:"title"`
	Data     []map[string]any `json:"data"`
	XAxisKey string           `json:"xAxisKey"`
	YAxisKey string           `json:"yAxisKey,omitempty"`
}

type Message struct {
	ID            string         `json:"id"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	DataSource    string         `json:"dataSource,omitempty"` // File the answer was drawn from
	Visualization *Visualization `json:"visualization,omitempty"`
}

type UploadedFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	Content    string    `json:"content"`
	UploadDate time.Time `json:"uploadDate"`
	IsIndexed  bool      `json:"isIndexed"`
}

type ScheduledTask struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	DueDate     time.Time      `json:"dueDate"`
	Status      TaskStatus     `json:"status"`
	Type        TaskType       `json:"type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
