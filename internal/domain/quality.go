package domain

// Quality is one rung of a protocol's quality ladder.
type Quality struct {
	Name      string `json:"name"`
	Code      int    `json:"code"`
	Format    string `json:"format"`
	Extension string `json:"extension"`
	// Rewrap is set when the raw stream must be copied into a standard
	// container before it is usable.
	Rewrap bool `json:"rewrap,omitempty"`
}

func (q Quality) IsZero() bool { return q.Name == "" }

func (q Quality) String() string { return q.Name }
