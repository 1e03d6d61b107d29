// Package internal holds the wire documents exchanged with other servers:
// webfinger / nodeinfo discovery, ActivityStreams actors and activities,
// and the ordered collections that expose follow relationships.
package internal

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
)

type XMLHostMeta struct {
	XMLName xml.Name
	Xmlns   string            `xml:"xmlns,attr"`
	Links   []XMLHostMetaLink `xml:"Link"`
}

type XMLHostMetaLink struct {
	Rel      string `xml:"rel,attr"`
	Type     string `xml:"type,attr"`
	Template string `xml:"template,attr"`
}

type JSONNodeInfo struct {
	Links []JSONNodeInfoLink `json:"links"`
}

type JSONNodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type JSONNodeInfo2Dot1 struct {
	Version           string                    `json:"version"`
	Software          JSONNodeInfo2Dot1Software `json:"software"`
	Protocols         []string                  `json:"protocols"`
	Services          JSONNodeInfo2Dot1Services `json:"services"`
	OpenRegistrations bool                      `json:"openRegistrations"`
	Usage             JSONNodeInfo2Dot1Usage    `json:"usage"`
	Metadata          JSONNodeInfo2Dot1Metadata `json:"metadata"`
}

type JSONNodeInfo2Dot1Software struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type JSONNodeInfo2Dot1Services struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type JSONNodeInfo2Dot1Usage struct {
	Users JSONNodeInfo2Dot1UsageUsers `json:"users"`
}

type JSONNodeInfo2Dot1UsageUsers struct {
	Total int `json:"total"`
}

type JSONNodeInfo2Dot1Metadata struct{}

type JSONWebfinger struct {
	Subject string              `json:"subject"`
	Aliases []string            `json:"aliases,omitempty"`
	Links   []JSONWebfingerLink `json:"links"`
}

type JSONWebfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

type JSONPublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type JSONActor struct {
	Context           json.RawMessage `json:"@context,omitempty"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	Name              string          `json:"name,omitempty"`
	PreferredUsername string          `json:"preferredUsername"`
	URL               string          `json:"url,omitempty"`
	Discoverable      bool            `json:"discoverable"`
	Inbox             string          `json:"inbox,omitempty"`
	Outbox            string          `json:"outbox,omitempty"`
	Followers         string          `json:"followers,omitempty"`
	Following         string          `json:"following,omitempty"`
	PublicKey         JSONPublicKey   `json:"publicKey"`
}

type JSONMainKey struct {
	Context           json.RawMessage `json:"@context,omitempty"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	PublicKey         JSONPublicKey   `json:"publicKey"`
}

// JSONActivityType is used to peek at the type of an incoming activity
// before decoding the full document.
type JSONActivityType struct {
	Type string `json:"type"`
}

type JSONFollow struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
	To     json.RawMessage `json:"to,omitempty"`
}

// ParseTo - フォロー対象のアクターIDを取り出す
func (f JSONFollow) ParseTo() (string, error) {
	var to string
	if err := json.Unmarshal(f.Object, &to); err != nil {
		return "", fmt.Errorf("failed to parse follow object: %w", err)
	}
	return to, nil
}

type JSONLDFollow struct {
	Context json.RawMessage `json:"@context"`
	JSONFollow
}

type JSONAccept struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

type JSONLDAccept struct {
	Context json.RawMessage `json:"@context"`
	JSONAccept
}

type JSONUndo struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

type JSONOrderedCollection struct {
	Context    json.RawMessage `json:"@context,omitempty"`
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TotalItems int             `json:"totalItems"`
	First      string          `json:"first,omitempty"`
	Last       string          `json:"last,omitempty"`
}

type JSONOrderedCollectionPage struct {
	Context      json.RawMessage `json:"@context,omitempty"`
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	TotalItems   int             `json:"totalItems"`
	PartOf       string          `json:"partOf"`
	Prev         string          `json:"prev,omitempty"`
	Next         string          `json:"next,omitempty"`
	OrderedItems []string        `json:"orderedItems"`
}
