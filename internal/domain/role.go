package domain

// Role is the occupant's role within the room for the duration of one
// presence session.
type Role int

const (
	RoleNone Role = iota
	RoleVisitor
	RoleParticipant
	RoleModerator
)

func (r Role) String() string {
	switch r {
	case RoleVisitor:
		return "visitor"
	case RoleParticipant:
		return "participant"
	case RoleModerator:
		return "moderator"
	default:
		return "none"
	}
}

// RoleFromString maps the wire value to a Role. Unknown values map to
// RoleNone, best effort.
func RoleFromString(s string) Role {
	switch s {
	case "visitor":
		return RoleVisitor
	case "participant":
		return RoleParticipant
	case "moderator":
		return RoleModerator
	default:
		return RoleNone
	}
}

// Affiliation is the occupant's long-lived association with the room,
// independent of the current presence session.
type Affiliation int

const (
	AffiliationNone Affiliation = iota
	AffiliationOutcast
	AffiliationMember
	AffiliationAdmin
	AffiliationOwner
)

func (a Affiliation) String() string {
	switch a {
	case AffiliationOutcast:
		return "outcast"
	case AffiliationMember:
		return "member"
	case AffiliationAdmin:
		return "admin"
	case AffiliationOwner:
		return "owner"
	default:
		return "none"
	}
}

// AffiliationFromString maps the wire value to an Affiliation. Unknown
// values map to AffiliationNone, best effort.
func AffiliationFromString(s string) Affiliation {
	switch s {
	case "outcast":
		return AffiliationOutcast
	case "member":
		return AffiliationMember
	case "admin":
		return AffiliationAdmin
	case "owner":
		return AffiliationOwner
	default:
		return AffiliationNone
	}
}
