package instagram

// MediaKind distinguishes photos from videos
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

// MediaItem is a single downloadable photo or video
type MediaItem struct {
	ID   string
	Kind MediaKind
	URL  string
}

// Profile is the subset of a user profile the relay needs
type Profile struct {
	ID        string
	Username  string
	FullName  string
	IsPrivate bool
}

// profileResponse is the wire format of the web profile endpoint
type profileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Status          string `json:"status"`
	Data            struct {
		User *struct {
			ID        string `json:"id"`
			Username  string `json:"username"`
			FullName  string `json:"full_name"`
			IsPrivate bool   `json:"is_private"`
		} `json:"user"`
	} `json:"data"`
}

// reelsMediaResponse is the wire format of the stories (reels media) endpoint
type reelsMediaResponse struct {
	Status     string `json:"status"`
	ReelsMedia []struct {
		ID    interface{} `json:"id"`
		Items []storyItem `json:"items"`
	} `json:"reels_media"`
}

type storyItem struct {
	PK            interface{} `json:"pk"`
	ID            string      `json:"id"`
	MediaType     int         `json:"media_type"` // 1 photo, 2 video
	TakenAt       int64       `json:"taken_at"`
	ImageVersions struct {
		Candidates []mediaCandidate `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []mediaCandidate `json:"video_versions"`
}

type mediaCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// shortcodeMediaResponse is the wire format of the GraphQL shortcode query
type shortcodeMediaResponse struct {
	Status string `json:"status"`
	Data   struct {
		ShortcodeMedia *shortcodeMedia `json:"shortcode_media"`
	} `json:"data"`
}

type shortcodeMedia struct {
	Typename   string `json:"__typename"`
	ID         string `json:"id"`
	Shortcode  string `json:"shortcode"`
	DisplayURL string `json:"display_url"`
	VideoURL   string `json:"video_url"`
	IsVideo    bool   `json:"is_video"`
	Owner      struct {
		Username  string `json:"username"`
		IsPrivate bool   `json:"is_private"`
	} `json:"owner"`
	SidecarChildren struct {
		Edges []struct {
			Node shortcodeMedia `json:"node"`
		} `json:"edges"`
	} `json:"edge_sidecar_to_children"`
}

// Post is a resolved post or reel with its owner and media items
type Post struct {
	Shortcode string
	Owner     string
	Items     []MediaItem
}

// loginResponse is the wire format of the login ajax endpoint
type loginResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	Authenticated     bool   `json:"authenticated"`
	User              bool   `json:"user"`
	UserID            string `json:"userId"`
	TwoFactorRequired bool   `json:"two_factor_required"`
	CheckpointURL     string `json:"checkpoint_url"`
	TwoFactorInfo     struct {
		TwoFactorIdentifier string `json:"two_factor_identifier"`
		Username            string `json:"username"`
	} `json:"two_factor_info"`
}
