package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/blackmichael/skyreader/internal/domain"
)

const (
	collectionLike   = "app.bsky.feed.like"
	collectionRepost = "app.bsky.feed.repost"
)

type subjectRecord struct {
	Type      string           `json:"$type"`
	Subject   domain.StrongRef `json:"subject"`
	CreatedAt string           `json:"createdAt"`
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	RKey       string `json:"rkey"`
}

// Like creates a like record for the post and returns its uri.
func (c *Client) Like(ctx context.Context, uri, cid string) (string, error) {
	return c.createSubjectRecord(ctx, collectionLike, uri, cid)
}

// DeleteLike deletes a like record.
func (c *Client) DeleteLike(ctx context.Context, recordURI string) error {
	return c.deleteRecord(ctx, collectionLike, recordURI)
}

// Repost creates a repost record for the post and returns its uri.
func (c *Client) Repost(ctx context.Context, uri, cid string) (string, error) {
	return c.createSubjectRecord(ctx, collectionRepost, uri, cid)
}

// DeleteRepost deletes a repost record.
func (c *Client) DeleteRepost(ctx context.Context, recordURI string) error {
	return c.deleteRecord(ctx, collectionRepost, recordURI)
}

func (c *Client) createSubjectRecord(ctx context.Context, collection, uri, cid string) (string, error) {
	did := c.DID()
	if did == "" {
		return "", ErrNotAuthenticated
	}

	var resp struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		nsid:   "com.atproto.repo.createRecord",
		body: createRecordRequest{
			Repo:       did,
			Collection: collection,
			Record: subjectRecord{
				Type:      collection,
				Subject:   domain.StrongRef{URI: uri, CID: cid},
				CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
			},
		},
		result: &resp,
		auth:   true,
	})
	if err != nil {
		return "", err
	}
	return resp.URI, nil
}

func (c *Client) deleteRecord(ctx context.Context, collection, recordURI string) error {
	did := c.DID()
	if did == "" {
		return ErrNotAuthenticated
	}
	rkey, err := RecordKey(recordURI)
	if err != nil {
		return err
	}

	var resp jsoniter.RawMessage
	return c.do(ctx, call{
		method: http.MethodPost,
		nsid:   "com.atproto.repo.deleteRecord",
		body: deleteRecordRequest{
			Repo:       did,
			Collection: collection,
			RKey:       rkey,
		},
		result: &resp,
		auth:   true,
	})
}

// RecordKey returns the record key, the last path segment, of an AT-URI.
func RecordKey(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", fmt.Errorf("invalid AT-URI %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] == "" {
		return "", fmt.Errorf("AT-URI %q has no record key", uri)
	}
	return parts[2], nil
}
