package entity

import "time"

type AuditAction string

const (
	AuditReservationCreated       AuditAction = "RESERVATION_CREATED"
	AuditReservationDeleted       AuditAction = "RESERVATION_DELETED"
	AuditReservationStatusChanged AuditAction = "RESERVATION_STATUS_CHANGED"
	AuditWorkshopCreated          AuditAction = "WORKSHOP_CREATED"
	AuditWorkshopUpdated          AuditAction = "WORKSHOP_UPDATED"
	AuditWorkshopDeleted          AuditAction = "WORKSHOP_DELETED"
	AuditChildCreated             AuditAction = "CHILD_CREATED"
	AuditChildUpdated             AuditAction = "CHILD_UPDATED"
	AuditChildDeleted             AuditAction = "CHILD_DELETED"
	AuditParentCreated            AuditAction = "PARENT_CREATED"
	AuditParentUpdated            AuditAction = "PARENT_UPDATED"
	AuditParentDeleted            AuditAction = "PARENT_DELETED"
)

// SystemActor is recorded when no caller identity is supplied.
const SystemActor = "system"

type AuditEntry struct {
	ID        int64                  `json:"id" db:"id"`
	Action    AuditAction            `json:"action" db:"action"`
	Actor     string                 `json:"actor" db:"actor"`
	TargetID  int64                  `json:"target_id" db:"target_id"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
