package domain

// Notification is one entry of app.bsky.notification.listNotifications.
type Notification struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author Actor  `json:"author"`

	// Reason is one of like, repost, follow, mention, reply, quote, ...
	Reason string `json:"reason"`

	// ReasonSubject is the AT-URI of the post the notification is about.
	ReasonSubject string     `json:"reasonSubject,omitempty"`
	Record        PostRecord `json:"record"`
	IsRead        bool       `json:"isRead"`
	IndexedAt     string     `json:"indexedAt"`
}

// NotificationPage is one page of notifications.
type NotificationPage struct {
	Notifications []Notification
	Cursor        string
}

// Preferences is the subset of account preferences that drive moderation.
type Preferences struct {
	AdultContentEnabled bool

	// Labels maps a label value to the visibility the viewer chose for it.
	Labels map[string]LabelVisibility
}

// LabelVisibility is a user's choice for a content label.
type LabelVisibility string

const (
	VisibilityIgnore LabelVisibility = "ignore"
	VisibilityWarn   LabelVisibility = "warn"
	VisibilityHide   LabelVisibility = "hide"
)
