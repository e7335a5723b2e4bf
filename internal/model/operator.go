package model

import "time"

type OperatorStatus string

const (
	OperatorActive    OperatorStatus = "active"
	OperatorSuspended OperatorStatus = "suspended"
)

// Operator is an admin allowed to manage the subscriber list.
type Operator struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	APIKey    string         `db:"api_key"`
	Status    OperatorStatus `db:"status"` // active|suspended
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (o Operator) Active() bool { return o.Status == OperatorActive }
