package domain

import "time"

// Role identifies who authored an interaction message.
type Role string

const (
	// RoleUser marks messages typed by the user.
	RoleUser Role = "user"
	// RoleApp marks simulated application replies.
	RoleApp Role = "app"
)

// MessageKind distinguishes regular replies from placeholders written when
// the collaborator failed.
type MessageKind string

const (
	MessageKindNormal   MessageKind = "normal"
	MessageKindDegraded MessageKind = "degraded"
)

// InteractionMessage is one entry of the append-only interaction transcript.
type InteractionMessage struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
}
