package world

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// stateDigest hashes everything that affects future ticks. Resume tokens and client
// attachment are excluded so a replay reproduces the same digests.
func (w *World) stateDigest(nowTick uint64) string {
	h := blake3.New(32, nil)
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.nextRider)
	for _, r := range w.order {
		digestRider(h, &tmp, r)
	}
	ctr := w.counter.Snapshot()
	for _, name := range w.counter.Names() {
		h.Write([]byte(name))
		digestWriteI64(h, &tmp, ctr[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestRider(h hashWriter, tmp *[8]byte, r *Rider) {
	h.Write([]byte(r.ID))
	h.Write([]byte{0, byte(r.held)})
	h.Write([]byte(r.Vehicle))
	if r.mover != nil {
		s := r.mover.Snapshot()
		h.Write([]byte{byte(s.State), byte(s.Facing), byte(s.Pending)})
		digestWriteI64(h, tmp, int64(s.Current.X))
		digestWriteI64(h, tmp, int64(s.Current.Y))
		digestWriteI64(h, tmp, int64(s.Target.X))
		digestWriteI64(h, tmp, int64(s.Target.Y))
		digestWriteF64(h, tmp, s.Progress)
		digestWriteF64(h, tmp, s.Speed)
		digestWriteF64(h, tmp, s.Yaw)
		return
	}
	s := r.follower.Snapshot()
	digestWriteI64(h, tmp, int64(s.Branch))
	h.Write([]byte{boolByte(s.Reversed), boolByte(s.Moving)})
	digestWriteI64(h, tmp, int64(s.Segment))
	digestWriteI64(h, tmp, int64(s.Dir))
	digestWriteF64(h, tmp, s.Distance)
	digestWriteF64(h, tmp, s.Yaw)
	if s.Corner != nil {
		h.Write([]byte{1})
		digestWriteI64(h, tmp, int64(s.Corner.Node))
		digestWriteI64(h, tmp, int64(s.Corner.Sign))
	} else {
		h.Write([]byte{0})
	}
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
