package entity

import "time"

// EntityType identifies which request table owns a workflow instance
type EntityType string

const (
	EntityTRF           EntityType = "TRF"
	EntityClaim         EntityType = "Claim"
	EntityVisa          EntityType = "Visa"
	EntityAccommodation EntityType = "Accommodation"
	EntityTransport     EntityType = "Transport"
)

var validEntityTypes = map[EntityType]bool{
	EntityTRF:           true,
	EntityClaim:         true,
	EntityVisa:          true,
	EntityAccommodation: true,
	EntityTransport:     true,
}

// IsValid returns true if the type names a known request entity
func (e EntityType) IsValid() bool {
	return validEntityTypes[e]
}

// String returns the string representation of the entity type
func (e EntityType) String() string {
	return string(e)
}

// AllEntityTypes lists every request entity type the portal manages
func AllEntityTypes() []EntityType {
	return []EntityType{EntityTRF, EntityClaim, EntityVisa, EntityAccommodation, EntityTransport}
}

// Request is the generic shape shared by all five request tables
type Request struct {
	ID          string    `json:"id"`
	RequestorID string    `json:"requestor_id"`
	Department  string    `json:"department"`
	CostCenter  string    `json:"cost_center"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApprovalContext is the entity metadata role resolution runs against
type ApprovalContext struct {
	EntityID    string
	EntityType  EntityType
	RequestorID string
	Department  string
	CostCenter  string
}

// Actor is a verified identity supplied by the authentication boundary
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// RoleAdmin holders may act on any instance and cancel on behalf of requestors
const RoleAdmin = "Administrator"
