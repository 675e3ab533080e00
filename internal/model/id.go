package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const localIDPrefix = "local:"

// TaskID identifies a task either by a store-assigned durable id or by a
// placeholder minted locally before the store confirmed the insert.
type TaskID struct {
	value string
	local bool
}

func DurableID(v string) TaskID { return TaskID{value: v} }

func LocalID(v string) TaskID { return TaskID{value: v, local: true} }

// NewLocalID mints a fresh placeholder id.
func NewLocalID() TaskID { return LocalID(uuid.NewString()) }

func (id TaskID) IsLocal() bool { return id.local }

func (id TaskID) IsZero() bool { return id.value == "" }

// Value is the raw id without the local/durable tag.
func (id TaskID) Value() string { return id.value }

func (id TaskID) String() string {
	if id.local {
		return localIDPrefix + id.value
	}
	return id.value
}

func (id TaskID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TaskID) UnmarshalText(b []byte) error {
	s := string(b)
	if s == "" {
		return fmt.Errorf("empty task id")
	}
	if v, ok := strings.CutPrefix(s, localIDPrefix); ok {
		*id = LocalID(v)
		return nil
	}
	*id = DurableID(s)
	return nil
}

// ParseTaskID reads the String form back.
func ParseTaskID(s string) (TaskID, error) {
	var id TaskID
	err := id.UnmarshalText([]byte(s))
	return id, err
}
