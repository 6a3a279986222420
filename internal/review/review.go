package review

// Placeholders used when a lookup fails.
const (
	PlaceholderCover  = "https://cover2coverbookdesign.com/site/wp-content/uploads/2019/03/geometric1.jpg"
	PlaceholderAvatar = "https://i.imgur.com/9pNffkj.png"
	UnknownBook       = "Unknown book"
	UnknownAuthor     = "Unknown author"
)

// Record is the normalized review shape produced by every extractor.
type Record struct {
	Title        string `json:"title"`
	Score        int    `json:"score"`
	Author       string `json:"author"`
	URL          string `json:"url"`
	ImageURL     string `json:"image_url"`
	UserURL      string `json:"user_url"`
	Username     string `json:"username"`
	UserImageURL string `json:"user_image_url"`
	// IsNew is set by the freshness filter on the feed path. Profile records are never classified.
	IsNew bool `json:"is_new"`
}

// EventKind distinguishes activity entries on a profile page.
type EventKind int

const (
	Rating EventKind = iota
	Review
)

func (k EventKind) String() string {
	switch k {
	case Rating:
		return "rating"
	case Review:
		return "review"
	default:
		return "unknown"
	}
}

// Event is one classified activity entry. Only Review events are surfaced as records;
// Rating events are kept for logging.
type Event struct {
	Kind   EventKind
	Record Record
}

// OnlyNew returns the records flagged as new, preserving order.
func OnlyNew(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.IsNew {
			out = append(out, r)
		}
	}
	return out
}
