package server

import (
	"time"

	"github.com/otarkhan/slotwatch/internal/model"
)

// checkRequest is the /check-slots (and websocket) request body. All three
// fields are required.
type checkRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Appd     string `json:"appd"`
}

type checkResponse struct {
	Success    bool               `json:"success"`
	Slots      []model.SlotRecord `json:"slots"`
	TotalSlots int                `json:"totalSlots"`
	CheckedAt  time.Time          `json:"checkedAt"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status string     `json:"status"`
	Time   *time.Time `json:"time,omitempty"`
}

// wsFrame is one websocket message on /ws/check: state frames while the run
// progresses, then a single result or error frame.
type wsFrame struct {
	Type       string             `json:"type"`
	State      string             `json:"state,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	Success    *bool              `json:"success,omitempty"`
	Error      string             `json:"error,omitempty"`
	Message    string             `json:"message,omitempty"`
	Slots      []model.SlotRecord `json:"slots,omitempty"`
	TotalSlots int                `json:"totalSlots,omitempty"`
	CheckedAt  *time.Time         `json:"checkedAt,omitempty"`
}
