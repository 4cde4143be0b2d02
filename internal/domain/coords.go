package domain

// Role is the classification of a coordinate axis.
type Role string

// Coordinate roles.
const (
	RoleLatitude  Role = "latitude"
	RoleLongitude Role = "longitude"
	RoleTime      Role = "time"
	RoleIsobaric  Role = "isobaric"
	RoleDepth     Role = "depth"
)

// Roles lists every role in identification order.
var Roles = []Role{RoleLatitude, RoleLongitude, RoleTime, RoleIsobaric, RoleDepth}

// Direction is the stored ordering of a horizontal coordinate.
type Direction string

// Directions.
const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
)

// Positive is the CF "positive" attribute of a vertical coordinate.
type Positive string

// Vertical orientations.
const (
	PositiveUp   Positive = "up"
	PositiveDown Positive = "down"
)

// CoordinateDescriptor describes one identified coordinate.
type CoordinateDescriptor struct {
	Name      string
	Role      Role
	Units     string
	Min, Max  float64
	Direction Direction // Horizontal coordinates only.
	Positive  Positive  // Vertical coordinates only.
	Bounds    string    // Companion bounds coordinate, if declared.
}

// CoordinateMap is the result of identification. A nil entry means the role
// was not found or was ambiguous.
type CoordinateMap map[Role]*CoordinateDescriptor
