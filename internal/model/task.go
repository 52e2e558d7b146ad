// Package model defines the task document, progress, snapshot and configuration types of the pipeline monitor.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultTaskList is the list name the pipeline writes its tasks under.
const DefaultTaskList = "master"

// TaskID is a task or subtask id as it appeared in the document. Numeric ids
// are re-encoded as JSON numbers, all others as strings.
type TaskID struct {
	raw     string
	numeric bool
}

func NumericID(n int) TaskID {
	return TaskID{raw: strconv.Itoa(n), numeric: true}
}

func StringID(s string) TaskID {
	return TaskID{raw: s}
}

func (id TaskID) String() string {
	return id.raw
}

func (id TaskID) IsZero() bool {
	return id.raw == "" && !id.numeric
}

func (id *TaskID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = TaskID{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = TaskID{raw: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*id = TaskID{raw: n.String(), numeric: true}
	return nil
}

func (id TaskID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if id.numeric {
		return []byte(id.raw), nil
	}
	return json.Marshal(id.raw)
}

type Subtask struct {
	ID     TaskID `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

func (s *Subtask) UnmarshalJSON(b []byte) error {
	type plain Subtask
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	p.Status = p.Status.OrDefault()
	*s = Subtask(p)
	return nil
}

type Task struct {
	ID       TaskID    `json:"id"`
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	Subtasks []Subtask `json:"subtasks"`
}

func (t *Task) UnmarshalJSON(b []byte) error {
	type plain Task
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	p.Status = p.Status.OrDefault()
	if p.Subtasks == nil {
		p.Subtasks = []Subtask{}
	}
	*t = Task(p)
	return nil
}

// TaskList is one named list of the document.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

func (l *TaskList) UnmarshalJSON(b []byte) error {
	type plain TaskList
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Tasks == nil {
		p.Tasks = []Task{}
	}
	*l = TaskList(p)
	return nil
}

// TaskDocument is the root of tasks.json: a JSON object keyed by list name.
//
// Decoding is strict only for the primary list. Other top-level values that
// do not look like a task list are dropped.
type TaskDocument struct {
	Lists map[string]TaskList
}

// EmptyDocument returns the canonical empty document: the primary list with no tasks.
func EmptyDocument(primary string) TaskDocument {
	return TaskDocument{Lists: map[string]TaskList{primary: {Tasks: []Task{}}}}
}

// Tasks returns the tasks of the named list, or an empty slice.
func (d TaskDocument) Tasks(list string) []Task {
	if l, ok := d.Lists[list]; ok && l.Tasks != nil {
		return l.Tasks
	}
	return []Task{}
}

// WithList returns d with the named list guaranteed to be present.
func (d TaskDocument) WithList(list string) TaskDocument {
	if _, ok := d.Lists[list]; ok {
		return d
	}
	lists := make(map[string]TaskList, len(d.Lists)+1)
	for k, v := range d.Lists {
		lists[k] = v
	}
	lists[list] = TaskList{Tasks: []Task{}}
	return TaskDocument{Lists: lists}
}

// DecodeTaskDocument parses a task document. The primary list, when present,
// must decode; a JSON null document decodes to an empty one.
func DecodeTaskDocument(data []byte, primary string) (TaskDocument, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return TaskDocument{}, err
	}

	doc := TaskDocument{Lists: make(map[string]TaskList, len(raw))}
	for name, value := range raw {
		var list TaskList
		if err := json.Unmarshal(value, &list); err != nil {
			if name == primary {
				return TaskDocument{}, fmt.Errorf("list %q: %w", name, err)
			}
			continue
		}
		doc.Lists[name] = list
	}
	return doc.WithList(primary), nil
}

func (d *TaskDocument) UnmarshalJSON(b []byte) error {
	doc, err := DecodeTaskDocument(b, DefaultTaskList)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

func (d TaskDocument) MarshalJSON() ([]byte, error) {
	if d.Lists == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Lists)
}
