// Package addrtable implements the service map, full-path map and pattern
// tree: a tagged node hierarchy that lets one hash table implementation
// serve subtrees, handlers and service entries uniformly.
package addrtable

// hash folds key into a 32-bit bucket index: repeatedly h = (h + word) *
// hashMult >> 32, 4 bytes at a time, stopping at (and consuming) the
// first zero byte.
const hashMult uint64 = 0x9E3779B97F4A7C15 // golden-ratio derived odd constant

func hash(key string) uint32 {
	var h uint64 = 5381
	b := []byte(key)
	for i := 0; i < len(b); i += 4 {
		var word uint64
		done := false
		for j := 0; j < 4; j++ {
			var c byte
			if i+j < len(b) {
				c = b[i+j]
			}
			if c == 0 {
				done = true
			}
			word = (word << 8) | uint64(c)
		}
		h = (h + word) * hashMult >> 32
		if done {
			break
		}
	}
	return uint32(h)
}
