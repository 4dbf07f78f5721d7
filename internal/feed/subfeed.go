package feed

// Sub-feed grouping thresholds.
const (
	// SubFeedMinReposts is the repost count at or below which nothing is grouped.
	SubFeedMinReposts = 3

	// SubFeedMaxRatio is the repost share above which grouping would swallow
	// the page, so nothing is grouped.
	SubFeedMaxRatio = 0.9

	// SubFeedSplitRatio is the repost share above which reposts are split into
	// two groups instead of one.
	SubFeedSplitRatio = 0.5

	// SubFeedMinOthers is the non-repost count at or below which nothing is grouped.
	SubFeedMinOthers = 3
)

// GroupReposts pulls reposts out of items into one or two sub-feed groups
// when there are enough of them. Non-repost items keep their relative order.
// The input slice is not modified.
func GroupReposts(items []Item) []Item {
	var reposts, rest []Item
	for _, it := range items {
		if it.IsRepost() {
			reposts = append(reposts, it)
		} else {
			rest = append(rest, it)
		}
	}

	if len(reposts) <= SubFeedMinReposts {
		return items
	}

	ratio := float64(len(reposts)) / float64(len(items))
	if ratio > SubFeedMaxRatio || len(rest) <= SubFeedMinOthers {
		return items
	}

	n := len(rest)
	out := make([]Item, 0, n+2)
	out = append(out, rest...)

	if ratio > SubFeedSplitRatio {
		half := len(reposts) / 2
		// Both positions come from the length before any insertion.
		first := int(float64(n) / 3)
		second := int(float64(n) / 3 * 2)
		out = insertAt(out, first, subFeedItem(reposts[:half]))
		out = insertAt(out, second, subFeedItem(reposts[half:]))
		return out
	}

	return insertAt(out, int(float64(n)/2), subFeedItem(reposts))
}

func subFeedItem(reposts []Item) Item {
	sf := &SubFeed{Type: "repost"}
	for _, it := range reposts {
		sf.Posts = append(sf.Posts, *it.Entry)
	}
	key := "sub-feed"
	if len(reposts) > 0 {
		key += "-" + reposts[0].Key
	}
	return Item{Kind: ItemSubFeed, Key: key, SubFeed: sf}
}

func insertAt(items []Item, i int, it Item) []Item {
	if i > len(items) {
		i = len(items)
	}
	items = append(items, Item{})
	copy(items[i+1:], items[i:])
	items[i] = it
	return items
}
