package pdu

import "math"

const (
	pbhUnits = 1024.0
	pbhMask  = 0x3FF
)

// PackPitchBankHeading packs attitude in degrees into the 32 bit PBH field.
// Bits 31-22 hold pitch, 21-12 bank, 11-2 heading; the low two bits are unused.
// Each component is quantized to 360/1024 degrees.
func PackPitchBankHeading(pitch, bank, heading float64) uint32 {
	p := math.Mod(pitch/-360.0, 1.0)
	if p < 0 {
		p += 1.0
	}
	b := math.Mod(bank/-360.0, 1.0)
	if b < 0 {
		b += 1.0
	}
	h := math.Mod(heading/360.0, 1.0)
	if h < 0 {
		h += 1.0
	}
	return pbhComponent(p)<<22 | pbhComponent(b)<<12 | pbhComponent(h)<<2
}

// UnpackPitchBankHeading reverses PackPitchBankHeading.
// Pitch and bank come back in (-180, 180], heading in [0, 360).
func UnpackPitchBankHeading(pbh uint32) (pitch, bank, heading float64) {
	p := pbh >> 22 & pbhMask
	b := pbh >> 12 & pbhMask
	h := pbh >> 2 & pbhMask

	pitch = normalizeSigned(float64(p) / pbhUnits * -360.0)
	bank = normalizeSigned(float64(b) / pbhUnits * -360.0)

	heading = float64(h) / pbhUnits * 360.0
	if heading < 0 {
		heading += 360.0
	} else if heading >= 360.0 {
		heading -= 360.0
	}
	return pitch, bank, heading
}

func pbhComponent(fraction float64) uint32 {
	return uint32(int64(fraction*pbhUnits)) & pbhMask
}

func normalizeSigned(deg float64) float64 {
	if deg > 180.0 {
		return deg - 360.0
	}
	if deg <= -180.0 {
		return deg + 360.0
	}
	return deg
}
