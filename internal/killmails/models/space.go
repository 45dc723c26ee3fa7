package models

// Space classes, coarse categories derived from the solar system.
const (
	SpaceNormal   = "normal"
	SpaceWormhole = "wormhole"
	SpacePochven  = "pochven"
)

// Security classes.
const (
	SecurityHighsec  = "highsec"
	SecurityLowsec   = "lowsec"
	SecurityNullsec  = "nullsec"
	SecurityWormhole = "wormhole"
	SecurityPochven  = "pochven"
)

// Wormhole systems occupy a dedicated ID range. Pochven systems are k-space
// systems pinned at security -1.0. These boundaries are upstream data
// conventions, not game rules we control.
const (
	wormholeIDMin = 31000000
	wormholeIDMax = 32000000
)

const pochvenSecurity = -1.0

// ClassifySpace derives the space class from a system ID and its true
// security status.
func ClassifySpace(systemID int64, security float64) string {
	switch {
	case systemID >= wormholeIDMin && systemID < wormholeIDMax:
		return SpaceWormhole
	case security == pochvenSecurity:
		return SpacePochven
	default:
		return SpaceNormal
	}
}

// ClassifySecurity derives the security class from a system ID and its true
// security status.
func ClassifySecurity(systemID int64, security float64) string {
	switch {
	case systemID >= wormholeIDMin && systemID < wormholeIDMax:
		return SecurityWormhole
	case security == pochvenSecurity:
		return SecurityPochven
	case security >= 0.45:
		return SecurityHighsec
	case security > 0.0:
		return SecurityLowsec
	default:
		return SecurityNullsec
	}
}
