package core

import "github.com/contextflow/contextflow/internal/store"

// AppState is a snapshot of one user's session. Transitions return a new
// value and never modify the receiver's slices.
type AppState struct {
	Profile  store.UserProfile     `json:"profile"`
	Messages []store.Message       `json:"messages"`
	Files    []store.UploadedFile  `json:"files"`
	Tasks    []store.ScheduledTask `json:"tasks"`
}

func (s AppState) WithProfile(p store.UserProfile) AppState {
	s.Profile = p
	return s
}

func (s AppState) WithMessage(m store.Message) AppState {
	s.Messages = appendCopy(s.Messages, m)
	return s
}

func (s AppState) WithoutMessages() AppState {
	s.Messages = []store.Message{}
	return s
}

func (s AppState) WithFile(f store.UploadedFile) AppState {
	s.Files = appendCopy(s.Files, f)
	return s
}

func (s AppState) WithoutFile(id string) AppState {
	files := make([]store.UploadedFile, 0, len(s.Files))
	for _, f := range s.Files {
		if f.ID != id {
			files = append(files, f)
		}
	}
	s.Files = files
	return s
}

// WithTask puts the newest task first, matching how task lists are shown.
func (s AppState) WithTask(t store.ScheduledTask) AppState {
	tasks := make([]store.ScheduledTask, 0, len(s.Tasks)+1)
	tasks = append(tasks, t)
	s.Tasks = append(tasks, s.Tasks...)
	return s
}

// Context assembles the model grounding text for this snapshot.
func (s AppState) Context() string {
	return BuildContext(s.Profile, s.Messages, s.Files)
}

// History returns the conversation as model turns, oldest first.
func (s AppState) History() []Turn {
	turns := make([]Turn, 0, len(s.Messages))
	for _, m := range s.Messages {
		turns = append(turns, Turn{Role: string(m.Role), Content: m.Content})
	}
	return turns
}

func appendCopy[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item)
}
