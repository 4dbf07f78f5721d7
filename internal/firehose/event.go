package firehose

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	collectionLike   = "app.bsky.feed.like"
	collectionRepost = "app.bsky.feed.repost"
)

// jetstreamEvent is the raw JSON structure from Jetstream.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream.
type jetstreamCommit struct {
	Rev        string         `json:"rev"`
	Operation  string         `json:"operation"`
	Collection string         `json:"collection"`
	RKey       string         `json:"rkey"`
	Record     *subjectRecord `json:"record,omitempty"`
	CID        string         `json:"cid"`
}

// subjectRecord is the shared shape of like and repost records.
type subjectRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

// strongRef is a reference to a specific version of a record.
type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string              `json:"did"`
		TimeUS int64               `json:"time_us"`
		Kind   string              `json:"kind"`
		Commit jsoniter.RawMessage `json:"commit,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{
		DID:    raw.DID,
		TimeUS: raw.TimeUS,
		Kind:   raw.Kind,
	}
	if raw.Kind != "commit" || len(raw.Commit) == 0 {
		return event, nil
	}

	var rc struct {
		Rev        string              `json:"rev"`
		Operation  string              `json:"operation"`
		Collection string              `json:"collection"`
		RKey       string              `json:"rkey"`
		Record     jsoniter.RawMessage `json:"record,omitempty"`
		CID        string              `json:"cid"`
	}
	if err := json.Unmarshal(raw.Commit, &rc); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}

	commit := &jetstreamCommit{
		Rev:        rc.Rev,
		Operation:  rc.Operation,
		Collection: rc.Collection,
		RKey:       rc.RKey,
		CID:        rc.CID,
	}
	if len(rc.Record) > 0 && isEngagement(rc.Collection) {
		var record subjectRecord
		if err := json.Unmarshal(rc.Record, &record); err != nil {
			return nil, fmt.Errorf("unmarshal %s record: %w", rc.Collection, err)
		}
		commit.Record = &record
	}
	event.Commit = commit
	return event, nil
}

func isEngagement(collection string) bool {
	return collection == collectionLike || collection == collectionRepost
}
