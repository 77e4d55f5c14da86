package arp

// cacheEntries is the fixed number of neighbor mappings kept. There is no
// aging; entries live until overwritten.
const cacheEntries = 32

// Cache is a fixed-capacity IPv4-to-hardware-address table. The zero value is
// an empty cache ready to use. When full, learning a new address overwrites
// slot 0 rather than tracking recency.
type Cache struct {
	entries [cacheEntries]cacheEntry
}

type cacheEntry struct {
	proto [4]byte
	hw    [6]byte
	used  bool
}

// Lookup returns the hardware address learned for the given IPv4 address and
// whether a mapping exists.
func (c *Cache) Lookup(proto [4]byte) (hw [6]byte, ok bool) {
	for i := range c.entries {
		if c.entries[i].used && c.entries[i].proto == proto {
			return c.entries[i].hw, true
		}
	}
	return hw, false
}

// Learn stores the mapping proto->hw. An existing entry for proto is updated
// in place; otherwise the first free slot is taken. A full cache evicts slot 0.
func (c *Cache) Learn(proto [4]byte, hw [6]byte) {
	for i := range c.entries {
		if c.entries[i].used && c.entries[i].proto == proto {
			c.entries[i].hw = hw
			return
		}
	}
	for i := range c.entries {
		if !c.entries[i].used {
			c.entries[i] = cacheEntry{proto: proto, hw: hw, used: true}
			return
		}
	}
	c.entries[0] = cacheEntry{proto: proto, hw: hw, used: true}
}

// Len returns the number of live mappings.
func (c *Cache) Len() (n int) {
	for i := range c.entries {
		if c.entries[i].used {
			n++
		}
	}
	return n
}

// Reset discards all learned mappings.
func (c *Cache) Reset() {
	for i := range c.entries {
		c.entries[i] = cacheEntry{}
	}
}
