package recorder

// frameRing is a fixed-capacity ring of audio frames backed by one
// preallocated sample arena. It holds the rolling pre-roll while waiting for
// speech onset; pushing past capacity evicts the oldest frame. All frames
// must be exactly blockSize samples.
type frameRing struct {
	slots [][]float32
	head  int
	count int
}

func newFrameRing(capacityFrames, blockSize int) *frameRing {
	if capacityFrames < 0 {
		capacityFrames = 0
	}
	arena := make([]float32, capacityFrames*blockSize)
	slots := make([][]float32, capacityFrames)
	for i := range slots {
		slots[i] = arena[i*blockSize : (i+1)*blockSize : (i+1)*blockSize]
	}
	return &frameRing{slots: slots}
}

// push copies frame into the ring, evicting the oldest frame when full.
// A zero-capacity ring drops everything.
func (r *frameRing) push(frame []float32) {
	if len(r.slots) == 0 {
		return
	}
	tail := (r.head + r.count) % len(r.slots)
	copy(r.slots[tail], frame)
	if r.count < len(r.slots) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.slots)
	}
}

// appendTo appends the buffered frames to dst, oldest first, and returns the
// grown slice. The ring contents are unchanged.
func (r *frameRing) appendTo(dst []float32) []float32 {
	for i := range r.count {
		dst = append(dst, r.slots[(r.head+i)%len(r.slots)]...)
	}
	return dst
}

// len reports the number of buffered frames.
func (r *frameRing) len() int { return r.count }

// reset discards all buffered frames without releasing the arena.
func (r *frameRing) reset() {
	r.head = 0
	r.count = 0
}
