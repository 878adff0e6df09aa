package upstream

// Call describes one validated downstream request heading upstream.
type Call struct {
	Model  string
	Mask   uint64
	Stream bool
}
