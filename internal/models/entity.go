package models

import (
	"encoding/json"
)

// Entity is the polymorphic knowledge row. Kind-specific fields live in
// the Data JSON blob; the indexed columns carry what queries filter on.
type Entity struct {
	ID           string  `gorm:"primaryKey;type:varchar(512)" json:"id"`
	Kind         string  `gorm:"index;not null" json:"kind"`
	Status       string  `gorm:"index" json:"status"`
	DiscoveredBy string  `json:"discovered_by"`
	CreatedAt    int64   `gorm:"not null" json:"created_at"`
	UpdatedAt    int64   `gorm:"index;not null" json:"updated_at"`
	Confidence   float64 `gorm:"index;default:1.0" json:"confidence"`
	Data         string  `gorm:"type:json;not null" json:"data"`
}

// Entity lifecycle states.
const (
	StatusDiscovered  = "discovered"
	StatusVerified    = "verified"
	StatusExploited   = "exploited"
	StatusFailed      = "failed"
	StatusUnreachable = "unreachable"
)

// DataMap decodes the JSON blob.
func (e *Entity) DataMap() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if e.Data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(e.Data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetData encodes a map into the JSON blob.
func (e *Entity) SetData(data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	e.Data = string(raw)
	return nil
}

// EntityRelationship is a (parent, child, type) edge. Entities never
// hold cross-references; edges are the only linkage, which keeps the
// graph acyclic per direction and makes cascade deletes trivial.
type EntityRelationship struct {
	ParentID  string `gorm:"primaryKey;type:varchar(512);index:idx_rel_parent,priority:1" json:"parent_id"`
	ChildID   string `gorm:"primaryKey;type:varchar(512);index:idx_rel_child,priority:1" json:"child_id"`
	Type      string `gorm:"primaryKey;column:relationship_type;index:idx_rel_parent,priority:2;index:idx_rel_child,priority:2" json:"type"`
	CreatedAt int64  `gorm:"not null" json:"created_at"`
}

func (EntityRelationship) TableName() string {
	return "entity_relationships"
}

// ToolExecution is the immutable audit row for one invocation. It is
// written for every run, including parse failures, and never merged
// with knowledge rows.
type ToolExecution struct {
	ExecutionID     string `gorm:"primaryKey;type:varchar(36)" json:"execution_id"`
	ToolID          string `gorm:"index;not null" json:"tool_id"`
	StageID         string `gorm:"index" json:"stage_id"`
	Target          string `gorm:"index" json:"target"`
	Status          string `gorm:"index;not null" json:"status"`
	ParseStatus     string `gorm:"not null" json:"parse_status"`
	RawStdoutPath   string `json:"raw_stdout_path"`
	RawStderrPath   string `json:"raw_stderr_path"`
	StartedAt       int64  `gorm:"index;not null" json:"started_at"`
	CompletedAt     int64  `gorm:"not null" json:"completed_at"`
	EntitiesCreated int    `gorm:"default:0" json:"entities_created"`
	ErrorMessage    string `json:"error_message"`
}

func (ToolExecution) TableName() string {
	return "tool_executions"
}

// Execution status values.
const (
	ExecutionSuccess = "success"
	ExecutionFailed  = "failed"
	ExecutionPartial = "partial"
)

// Parse status values. These are outcomes, not errors.
const (
	ParseParsed      = "parsed"
	ParseFailed      = "parse_failed"
	ParseEmptyOutput = "empty_output"
)

// DurationMs returns the wall-clock duration of the invocation.
func (t *ToolExecution) DurationMs() int64 {
	return t.CompletedAt - t.StartedAt
}
