package monitor

// checksum hashes rendered message text so reconciliation can skip
// edits that would not change anything. Not cryptographic; collisions
// only cost a stale message until the next update.
func checksum(text string) uint64 {
	var h uint64
	for i := 0; i < len(text); i++ {
		h = h*31 + uint64(text[i])
	}
	return h
}
