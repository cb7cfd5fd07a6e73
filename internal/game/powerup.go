package game

import "math/rand/v2"

// PowerUpKind identifies the effect of a pickup.
type PowerUpKind uint8

const (
	PowerExtraWeapon PowerUpKind = iota
	PowerWeaponPower
	PowerSpeed
	PowerLife
	PowerShield
)

const (
	powerUpSize  = 0.6
	maxWeaponCap = 8
	maxPowerCap  = 8
	maxSpeedCap  = 6.0
	speedStep    = 0.5
	maxLivesCap  = 9
	shieldWindow = 5.0
)

func (k PowerUpKind) String() string {
	switch k {
	case PowerExtraWeapon:
		return "extra_weapon"
	case PowerWeaponPower:
		return "weapon_power"
	case PowerSpeed:
		return "speed"
	case PowerLife:
		return "life"
	case PowerShield:
		return "shield"
	}
	return "unknown"
}

var powerUpKinds = [...]PowerUpKind{PowerExtraWeapon, PowerWeaponPower, PowerSpeed, PowerLife, PowerShield}

func randomPowerUpKind(rng *rand.Rand) PowerUpKind {
	return powerUpKinds[rng.IntN(len(powerUpKinds))]
}

// PowerUp is a pickup lying in one cell.
type PowerUp struct {
	Entity
	Kind PowerUpKind
}

func newPowerUp(id string, kind PowerUpKind, cell GridPos) *PowerUp {
	return &PowerUp{Entity: newEntity(id, cell, powerUpSize, 1), Kind: kind}
}

// Apply mutates p according to the pickup kind. It returns false when the
// stat is already capped; the pickup is consumed either way.
func (u *PowerUp) Apply(p *Player) bool {
	switch u.Kind {
	case PowerExtraWeapon:
		if p.Loadout[0].Max >= maxWeaponCap {
			return false
		}
		p.Loadout[0].Max++
	case PowerWeaponPower:
		changed := false
		for i := range p.Loadout {
			if p.Loadout[i].Power < maxPowerCap {
				p.Loadout[i].Power++
				changed = true
			}
		}
		return changed
	case PowerSpeed:
		if p.Speed >= maxSpeedCap {
			return false
		}
		p.Speed = min(p.Speed+speedStep, maxSpeedCap)
	case PowerLife:
		if p.Lives >= maxLivesCap {
			return false
		}
		p.Lives++
	case PowerShield:
		p.Grant(shieldWindow)
	default:
		return false
	}
	return true
}
