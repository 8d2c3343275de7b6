package generate

// Content is one video's generated material: the script plus the metadata
// needed to publish it.
type Content struct {
	Topic       string   `json:"topic"`
	Script      string   `json:"script"`
	Titles      []string `json:"titles"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	Niche       string   `json:"niche"`
	Type        string   `json:"type"`
	GeneratedBy string   `json:"generated_by,omitempty"`
}

// Title returns the primary title (the first candidate).
func (c Content) Title() string {
	if len(c.Titles) == 0 {
		return "Untitled Video"
	}
	return c.Titles[0]
}
