package fedi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yamori/fedi/internal"
)

// followersPageSize - コレクションページの件数
const followersPageSize = 12

// ParsePage - pageクエリパラメータの解析
// 数値でない・正でない場合はページ指定なしとして扱う
func ParsePage(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

func pageCount(total int, size int) int {
	if total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

func pageURL(collectionURL string, page int) string {
	return fmt.Sprintf("%s?page=%d", collectionURL, page)
}

// buildOrderedCollection - コレクションの概要ドキュメントを組み立てる
// first は要素があり一覧が公開のときのみ、last はさらに複数ページあるときのみ
func buildOrderedCollection(collectionURL string, total int, vis Visibility) *internal.JSONOrderedCollection {
	doc := &internal.JSONOrderedCollection{
		Context:    json.RawMessage(`"https://www.w3.org/ns/activitystreams"`),
		ID:         collectionURL,
		Type:       "OrderedCollection",
		TotalItems: total,
	}

	if !vis.DiscloseItems || total == 0 {
		return doc
	}

	doc.First = pageURL(collectionURL, 1)
	if last := pageCount(total, followersPageSize); last > 1 {
		doc.Last = pageURL(collectionURL, last)
	}

	return doc
}

// buildOrderedCollectionPage - コレクションの1ページ分のドキュメントを組み立てる
// items は作成順、一覧が非公開のときは空になる
func buildOrderedCollectionPage(collectionURL string, page int, total int, items []string, vis Visibility) *internal.JSONOrderedCollectionPage {
	doc := &internal.JSONOrderedCollectionPage{
		Context:      json.RawMessage(`"https://www.w3.org/ns/activitystreams"`),
		ID:           pageURL(collectionURL, page),
		Type:         "OrderedCollectionPage",
		PartOf:       collectionURL,
		TotalItems:   total,
		OrderedItems: []string{},
	}

	if !vis.DiscloseItems {
		return doc
	}

	if items != nil {
		doc.OrderedItems = items
	}
	if page > 1 {
		doc.Prev = pageURL(collectionURL, page-1)
	}
	if page < pageCount(total, followersPageSize) {
		doc.Next = pageURL(collectionURL, page+1)
	}

	return doc
}
