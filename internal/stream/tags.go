package stream

// TagSlots is how many recent tags a session keeps.
const TagSlots = 4

// TagRing keeps the last TagSlots string tags of the current track.
type TagRing struct {
	slots [TagSlots]string
	next  int
}

// Add writes s at the current index and advances it, wrapping around.
func (r *TagRing) Add(s string) {
	r.slots[r.next] = s
	r.next = (r.next + 1) % TagSlots
}

func (r *TagRing) Reset() {
	r.slots = [TagSlots]string{}
	r.next = 0
}

// Slots returns the raw slot contents in slot order.
func (r *TagRing) Slots() [TagSlots]string {
	return r.slots
}

// Ordered returns the non-empty tags oldest first.
func (r *TagRing) Ordered() []string {
	out := make([]string, 0, TagSlots)
	for i := 0; i < TagSlots; i++ {
		if s := r.slots[(r.next+i)%TagSlots]; s != "" {
			out = append(out, s)
		}
	}
	return out
}
