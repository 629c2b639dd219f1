package memory

// Policy holds the retrieval and summarization knobs of the vector index.
type Policy struct {
	Enabled          bool
	AutoIndex        bool
	MaxRetrieveCount int
	MinSimilarity    float64
	TagWeight        float64
	VectorWeight     float64

	AutoSummarize    bool
	MidTermThreshold int
	BatchSize        int
}

func DefaultPolicy() Policy {
	return Policy{
		Enabled:          true,
		AutoIndex:        true,
		MaxRetrieveCount: 10,
		MinSimilarity:    0.3,
		TagWeight:        0.4,
		VectorWeight:     0.6,
		AutoSummarize:    true,
		MidTermThreshold: 15,
		BatchSize:        8,
	}
}

// normalized fills zero counts with defaults. Weights and the similarity
// floor are taken as given since zero is a meaningful value for them.
func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxRetrieveCount <= 0 {
		p.MaxRetrieveCount = d.MaxRetrieveCount
	}
	if p.MidTermThreshold <= 0 {
		p.MidTermThreshold = d.MidTermThreshold
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	return p
}
