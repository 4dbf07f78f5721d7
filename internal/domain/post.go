package domain

import (
	"encoding/json"
	"time"

	"golang.org/x/net/idna"
)

// Post is a hydrated post view as returned by the AppView
// (app.bsky.feed.defs#postView).
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string `json:"uri"`

	// CID is the content identifier of the record. Mutations reference it.
	CID string `json:"cid"`

	Author Actor      `json:"author"`
	Record PostRecord `json:"record"`
	Embed  *Embed     `json:"embed,omitempty"`

	ReplyCount  int `json:"replyCount"`
	RepostCount int `json:"repostCount"`
	LikeCount   int `json:"likeCount"`
	QuoteCount  int `json:"quoteCount"`

	IndexedAt string     `json:"indexedAt,omitempty"`
	Viewer    PostViewer `json:"viewer"`
	Labels    []Label    `json:"labels,omitempty"`
}

// PostViewer is the signed-in account's relationship to a post.
type PostViewer struct {
	// Like is the AT-URI of the viewer's like record, empty if not liked.
	Like string `json:"like,omitempty"`

	// Repost is the AT-URI of the viewer's repost record, empty if not reposted.
	Repost string `json:"repost,omitempty"`

	ThreadMuted       bool `json:"threadMuted,omitempty"`
	ReplyDisabled     bool `json:"replyDisabled,omitempty"`
	EmbeddingDisabled bool `json:"embeddingDisabled,omitempty"`
	Pinned            bool `json:"pinned,omitempty"`
}

// PostRecord is the app.bsky.feed.post record body.
type PostRecord struct {
	Text string `json:"text"`

	// CreatedAt is kept as the raw string; use Created for a parsed value.
	CreatedAt string       `json:"createdAt"`
	Reply     *RecordReply `json:"reply,omitempty"`
	Langs     []string     `json:"langs,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
}

// Created parses CreatedAt. Malformed or missing timestamps yield the zero time.
func (r PostRecord) Created() time.Time {
	if r.CreatedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RecordReply holds the strong references a reply record points at.
type RecordReply struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

// StrongRef is a reference to a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Actor is a basic profile view.
type Actor struct {
	// DID is the immutable account identifier.
	DID string `json:"did"`

	// Handle is the mutable, possibly punycode-encoded, human identifier.
	Handle      string      `json:"handle"`
	DisplayName string      `json:"displayName,omitempty"`
	Avatar      string      `json:"avatar,omitempty"`
	Viewer      ActorViewer `json:"viewer"`
	Labels      []Label     `json:"labels,omitempty"`
}

// DisplayHandle returns the handle decoded from punycode. The raw handle is
// returned when it cannot be decoded.
func (a Actor) DisplayHandle() string {
	if a.Handle == "" {
		return ""
	}
	decoded, err := idna.ToUnicode(a.Handle)
	if err != nil {
		return a.Handle
	}
	return decoded
}

// ActorViewer is the signed-in account's relationship to an actor.
type ActorViewer struct {
	// Following is the AT-URI of the viewer's follow record, empty if not following.
	Following  string `json:"following,omitempty"`
	FollowedBy string `json:"followedBy,omitempty"`

	// Blocking is the AT-URI of the viewer's block record.
	Blocking  string `json:"blocking,omitempty"`
	BlockedBy bool   `json:"blockedBy,omitempty"`
	Muted     bool   `json:"muted,omitempty"`
}

// IsFollowing reports whether the viewer follows the actor.
func (v ActorViewer) IsFollowing() bool {
	return v.Following != ""
}

// IsBlocked reports whether a block exists in either direction.
func (v ActorViewer) IsBlocked() bool {
	return v.Blocking != "" || v.BlockedBy
}

// Label is a moderation label attached to a post or actor.
type Label struct {
	Src string `json:"src"`
	URI string `json:"uri"`
	Val string `json:"val"`
	Neg bool   `json:"neg,omitempty"`
}

// EmbedKind discriminates Embed variants.
type EmbedKind string

const (
	EmbedUnknown         EmbedKind = "unknown"
	EmbedImages          EmbedKind = "images"
	EmbedExternal        EmbedKind = "external"
	EmbedVideo           EmbedKind = "video"
	EmbedRecord          EmbedKind = "record"
	EmbedRecordWithMedia EmbedKind = "recordWithMedia"
)

// Embed is the hydrated embed of a post. Exactly the fields matching Kind are set.
type Embed struct {
	Kind     EmbedKind       `json:"kind"`
	Images   []Image         `json:"images,omitempty"`
	External *External       `json:"external,omitempty"`
	Video    *Video          `json:"video,omitempty"`
	Record   *EmbeddedRecord `json:"record,omitempty"`

	// Media is set for EmbedRecordWithMedia.
	Media *Embed `json:"media,omitempty"`
}

// QuotedURI returns the AT-URI of a quoted record, or "" when the embed does
// not quote anything.
func (e *Embed) QuotedURI() string {
	if e == nil || e.Record == nil {
		return ""
	}
	switch e.Kind {
	case EmbedRecord, EmbedRecordWithMedia:
		return e.Record.URI
	default:
		return ""
	}
}

// Image is a single image of an images embed.
type Image struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

// External is a link card.
type External struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       string `json:"thumb,omitempty"`
}

// Video is a video embed.
type Video struct {
	CID       string `json:"cid"`
	Playlist  string `json:"playlist"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

// RecordKind discriminates EmbeddedRecord variants.
type RecordKind string

const (
	RecordView     RecordKind = "view"
	RecordNotFound RecordKind = "notFound"
	RecordBlocked  RecordKind = "blocked"
	RecordDetached RecordKind = "detached"
	RecordOther    RecordKind = "other"
)

// EmbeddedRecord is a quoted record.
type EmbeddedRecord struct {
	Kind   RecordKind  `json:"kind"`
	URI    string      `json:"uri"`
	CID    string      `json:"cid,omitempty"`
	Author *Actor      `json:"author,omitempty"`
	Value  *PostRecord `json:"value,omitempty"`
}

const (
	typeEmbedImages          = "app.bsky.embed.images#view"
	typeEmbedExternal        = "app.bsky.embed.external#view"
	typeEmbedVideo           = "app.bsky.embed.video#view"
	typeEmbedRecord          = "app.bsky.embed.record#view"
	typeEmbedRecordWithMedia = "app.bsky.embed.recordWithMedia#view"

	typeViewRecord   = "app.bsky.embed.record#viewRecord"
	typeViewNotFound = "app.bsky.embed.record#viewNotFound"
	typeViewBlocked  = "app.bsky.embed.record#viewBlocked"
	typeViewDetached = "app.bsky.embed.record#viewDetached"
)

// UnmarshalJSON decodes a lexicon embed view, dispatching on $type.
func (e *Embed) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string          `json:"$type"`
		Images   []Image         `json:"images"`
		External *External       `json:"external"`
		CID      string          `json:"cid"`
		Playlist string          `json:"playlist"`
		Thumb    string          `json:"thumbnail"`
		Alt      string          `json:"alt"`
		Record   json.RawMessage `json:"record"`
		Media    *Embed          `json:"media"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Embed{Kind: EmbedUnknown}
	switch raw.Type {
	case typeEmbedImages:
		e.Kind = EmbedImages
		e.Images = raw.Images
	case typeEmbedExternal:
		e.Kind = EmbedExternal
		e.External = raw.External
	case typeEmbedVideo:
		e.Kind = EmbedVideo
		e.Video = &Video{CID: raw.CID, Playlist: raw.Playlist, Thumbnail: raw.Thumb, Alt: raw.Alt}
	case typeEmbedRecord:
		e.Kind = EmbedRecord
		rec, err := decodeEmbeddedRecord(raw.Record)
		if err != nil {
			return err
		}
		e.Record = rec
	case typeEmbedRecordWithMedia:
		e.Kind = EmbedRecordWithMedia
		e.Media = raw.Media
		if len(raw.Record) > 0 {
			// recordWithMedia wraps the record view one level deeper.
			var inner struct {
				Record json.RawMessage `json:"record"`
			}
			if err := json.Unmarshal(raw.Record, &inner); err != nil {
				return err
			}
			rec, err := decodeEmbeddedRecord(inner.Record)
			if err != nil {
				return err
			}
			e.Record = rec
		}
	}
	return nil
}

func decodeEmbeddedRecord(data json.RawMessage) (*EmbeddedRecord, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var raw struct {
		Type   string      `json:"$type"`
		URI    string      `json:"uri"`
		CID    string      `json:"cid"`
		Author *Actor      `json:"author"`
		Value  *PostRecord `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	rec := &EmbeddedRecord{URI: raw.URI, CID: raw.CID, Author: raw.Author}
	switch raw.Type {
	case typeViewRecord:
		rec.Kind = RecordView
		rec.Value = raw.Value
	case typeViewNotFound:
		rec.Kind = RecordNotFound
	case typeViewBlocked:
		rec.Kind = RecordBlocked
	case typeViewDetached:
		rec.Kind = RecordDetached
	default:
		rec.Kind = RecordOther
	}
	return rec, nil
}
