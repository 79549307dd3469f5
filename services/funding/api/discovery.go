package api

type ListingSearchRequest struct {
	PublishedFrom string   `json:"publishedFrom,omitempty"`
	PublishedTo   string   `json:"publishedTo,omitempty"`
	Verticals     []string `json:"verticals,omitempty"`
	Prefixes      []string `json:"prefixes,omitempty"`
}

type TrailRequest struct {
	ALN       string `json:"aln" validate:"required"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type NIHTrackingRequest struct {
	Keyword string `json:"keyword"`
	State   string `json:"state"`
}

type NSFTrackingRequest struct {
	Keyword string `json:"keyword"`
	ALN     string `json:"aln"`
}
