package thread

import "github.com/blackmichael/skyreader/internal/fifo"

// DisclosureMemoryCapacity is how many open disclosures are remembered.
const DisclosureMemoryCapacity = 100

// DisclosureMemory remembers which collapsed reply branches the reader opened,
// so they stay open when the thread is shown again. Only open branches are
// stored; closing one forgets it.
type DisclosureMemory struct {
	open *fifo.Set
}

// NewDisclosureMemory creates an empty memory.
func NewDisclosureMemory() *DisclosureMemory {
	return &DisclosureMemory{open: fifo.New(DisclosureMemoryCapacity)}
}

func disclosureKey(branchURI, focalURI string) string {
	return branchURI + "-" + focalURI
}

// Set records the state of the branch rooted at branchURI while focalURI is
// the thread being viewed.
func (m *DisclosureMemory) Set(branchURI, focalURI string, open bool) {
	key := disclosureKey(branchURI, focalURI)
	if open {
		m.open.Add(key)
		return
	}
	m.open.Delete(key)
}

// IsOpen reports whether the branch was left open. A nil memory remembers nothing.
func (m *DisclosureMemory) IsOpen(branchURI, focalURI string) bool {
	if m == nil {
		return false
	}
	return m.open.Has(disclosureKey(branchURI, focalURI))
}
