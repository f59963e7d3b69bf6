package gsusb

import (
	"math"

	"github.com/canhost/gsusb/internal/wire"
)

// BitTiming is the resolved register set pushed to the device for a given
// bitrate. The solver below always sets PropSeg to 0 and carries the whole
// segment before the sample point in PhaseSeg1.
type BitTiming struct {
	PropSeg   uint32
	PhaseSeg1 uint32
	PhaseSeg2 uint32
	SJW       uint32
	BRP       uint32
}

func (t BitTiming) toWire() wire.BitTiming {
	return wire.BitTiming{
		PropSeg:   t.PropSeg,
		PhaseSeg1: t.PhaseSeg1,
		PhaseSeg2: t.PhaseSeg2,
		SJW:       t.SJW,
		BRP:       t.BRP,
	}
}

// bitTimingConsts mirrors wire.BitTimingConsts with the names the solver
// works with; Interface keeps one per channel for Start to resolve against.
type bitTimingConsts struct {
	feature                        uint32
	fclkCAN                        uint32
	tseg1Min, tseg1Max             uint32
	tseg2Min, tseg2Max             uint32
	sjwMax                         uint32
	brpMin, brpMax, brpInc         uint32
}

func fromWireConsts(c wire.BitTimingConsts) bitTimingConsts {
	return bitTimingConsts{
		feature:  c.Feature,
		fclkCAN:  c.FClkCAN,
		tseg1Min: c.TSeg1Min,
		tseg1Max: c.TSeg1Max,
		tseg2Min: c.TSeg2Min,
		tseg2Max: c.TSeg2Max,
		sjwMax:   c.SJWMax,
		brpMin:   c.BRPMin,
		brpMax:   c.BRPMax,
		brpInc:   c.BRPInc,
	}
}

const targetSamplePoint = 0.875

// solveBitTiming finds (brp, tseg1, tseg2, sjw) producing exactly bitrate
// bps from clock c.fclkCAN, scored by closeness of the sample point to
// 87.5%. Returns ErrInvalidBitrate if no candidate divides exactly.
func solveBitTiming(c bitTimingConsts, bitrate uint32) (BitTiming, error) {
	if bitrate == 0 {
		return BitTiming{}, ErrInvalidBitrate
	}

	type candidate struct {
		bt    BitTiming
		score float64
	}
	var best *candidate

	minN := 1 + c.tseg1Min + c.tseg2Min
	maxN := 1 + c.tseg1Max + c.tseg2Max

	brpInc := c.brpInc
	if brpInc == 0 {
		brpInc = 1
	}

	for brp := c.brpMin; brp <= c.brpMax; brp += brpInc {
		denom := uint64(brp) * uint64(bitrate)
		if denom == 0 {
			continue
		}
		if uint64(c.fclkCAN)%denom != 0 {
			continue
		}
		n := uint64(c.fclkCAN) / denom
		if n < uint64(minN) || n > uint64(maxN) {
			continue
		}

		tseg1 := int64(math.Round(targetSamplePoint*float64(n) - 1))
		if tseg1 < int64(c.tseg1Min) {
			tseg1 = int64(c.tseg1Min)
		}
		if tseg1 > int64(c.tseg1Max) {
			tseg1 = int64(c.tseg1Max)
		}
		tseg2 := int64(n) - 1 - tseg1
		if tseg2 < int64(c.tseg2Min) {
			tseg2 = int64(c.tseg2Min)
		}
		if tseg2 > int64(c.tseg2Max) {
			tseg2 = int64(c.tseg2Max)
		}
		if uint64(1+tseg1+tseg2) != n {
			continue
		}

		sjw := c.sjwMax
		if sjw > 1 {
			sjw = 1
		}

		actualSample := float64(1+tseg1) / float64(n)
		score := math.Abs(actualSample - targetSamplePoint)

		cand := candidate{
			bt: BitTiming{
				PropSeg:   0,
				PhaseSeg1: uint32(tseg1),
				PhaseSeg2: uint32(tseg2),
				SJW:       sjw,
				BRP:       brp,
			},
			score: score,
		}
		if best == nil || cand.score < best.score {
			best = &cand
		}
	}

	if best == nil {
		return BitTiming{}, ErrInvalidBitrate
	}
	return best.bt, nil
}
