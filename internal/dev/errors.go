package dev

import (
	"time"

	"github.com/nu7hatch/gouuid"
)

type Error struct {
	Time      time.Time              `json:"time"`
	RequestId string                 `json:"requestId,omitempty"`
	Component string                 `json:"component"`
	Name      string                 `json:"name"`
	Error     string                 `json:"error"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

func (e Error) Slug() string {
	if e.RequestId != "" {
		return e.RequestId
	}
	return NewRequestId()
}

func NewError(component, name string, err error, extra map[string]interface{}) Error {
	return Error{
		Time:      time.Now(),
		Component: component,
		Name:      name,
		Error:     err.Error(),
		Extra:     extra,
	}
}

// NewRequestId returns a random id used to correlate log lines of one request.
func NewRequestId() string {
	u, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return u.String()
}
