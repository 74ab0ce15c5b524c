package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CatalogFormatVersion is the persisted document layout version. Bumping it
// invalidates every document written by an older build.
const CatalogFormatVersion = 2

// Item is a cosmetic item definition taken from the public catalog.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	IconRef     string `json:"icon"`
	RarityID    string `json:"rarity,omitempty"` // empty for pass-exclusive items
}

// RarityTier describes a content tier an item can belong to.
type RarityTier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconRef string `json:"icon"`
}

// PriceTable maps item IDs to their store price. LastRefreshedAt covers the
// whole table and is zero when prices were never fetched.
type PriceTable struct {
	Prices          map[string]int
	LastRefreshedAt time.Time
}

// NewPriceTable returns an empty, never-refreshed table.
func NewPriceTable() PriceTable {
	return PriceTable{Prices: make(map[string]int)}
}

// Refreshed reports whether the table was populated at least once.
func (p PriceTable) Refreshed() bool {
	return !p.LastRefreshedAt.IsZero()
}

// Stale reports whether the table needs a refresh at the given time.
func (p PriceTable) Stale(now time.Time, window time.Duration) bool {
	return !p.Refreshed() || now.Sub(p.LastRefreshedAt) > window
}

// Price returns the price of an item, if known.
func (p PriceTable) Price(id string) (int, bool) {
	price, ok := p.Prices[id]
	return price, ok
}

// Clone returns a deep copy.
func (p PriceTable) Clone() PriceTable {
	prices := make(map[string]int, len(p.Prices))
	for id, price := range p.Prices {
		prices[id] = price
	}
	return PriceTable{Prices: prices, LastRefreshedAt: p.LastRefreshedAt}
}

const priceTimestampKey = "timestamp"

// MarshalJSON writes the table as a flat id->price object carrying an extra
// "timestamp" key in unix milliseconds (null when never refreshed).
func (p PriceTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Prices)+1)
	for id, price := range p.Prices {
		out[id] = price
	}
	if p.Refreshed() {
		out[priceTimestampKey] = p.LastRefreshedAt.UnixMilli()
	} else {
		out[priceTimestampKey] = nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat object written by MarshalJSON.
func (p *PriceTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	table := NewPriceTable()
	for key, value := range raw {
		if key == priceTimestampKey {
			if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				continue
			}
			var millis int64
			if err := json.Unmarshal(value, &millis); err != nil {
				return fmt.Errorf("price timestamp: %w", err)
			}
			if millis > 0 {
				table.LastRefreshedAt = time.UnixMilli(millis)
			}
			continue
		}
		var price int
		if err := json.Unmarshal(value, &price); err != nil {
			return fmt.Errorf("price for %s: %w", key, err)
		}
		table.Prices[key] = price
	}

	*p = table
	return nil
}

// CacheDocument is the persisted form of the catalog cache.
type CacheDocument struct {
	FormatVersion  int
	CatalogVersion string
	Items          map[string]Item
	Prices         PriceTable
	Rarities       map[string]RarityTier
}

// NewCacheDocument returns an empty document at the current format version.
func NewCacheDocument() *CacheDocument {
	return &CacheDocument{
		FormatVersion: CatalogFormatVersion,
		Items:         make(map[string]Item),
		Prices:        NewPriceTable(),
		Rarities:      make(map[string]RarityTier),
	}
}

type itemRecord struct {
	Name   string  `json:"name"`
	Icon   string  `json:"icon"`
	Rarity *string `json:"rarity"`
}

type rarityRecord struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type documentJSON struct {
	FormatVersion  int                     `json:"formatVersion"`
	CatalogVersion string                  `json:"catalogVersion,omitempty"`
	GameVersion    string                  `json:"gameVersion,omitempty"`
	Items          map[string]itemRecord   `json:"items,omitempty"`
	Skins          map[string]itemRecord   `json:"skins,omitempty"`
	Prices         *PriceTable             `json:"prices"`
	Rarities       map[string]rarityRecord `json:"rarities"`
}

// MarshalJSON writes the document keyed by item and rarity ID.
func (d CacheDocument) MarshalJSON() ([]byte, error) {
	out := documentJSON{
		FormatVersion:  d.FormatVersion,
		CatalogVersion: d.CatalogVersion,
		Items:          make(map[string]itemRecord, len(d.Items)),
		Rarities:       make(map[string]rarityRecord, len(d.Rarities)),
	}
	for id, item := range d.Items {
		rec := itemRecord{Name: item.DisplayName, Icon: item.IconRef}
		if item.RarityID != "" {
			rarity := item.RarityID
			rec.Rarity = &rarity
		}
		out.Items[id] = rec
	}
	for id, rarity := range d.Rarities {
		out.Rarities[id] = rarityRecord{Name: rarity.Name, Icon: rarity.IconRef}
	}
	prices := d.Prices
	if prices.Prices == nil {
		prices = NewPriceTable()
	}
	out.Prices = &prices
	return json.Marshal(out)
}

// UnmarshalJSON reads documents written by MarshalJSON as well as the older
// gameVersion/skins layout.
func (d *CacheDocument) UnmarshalJSON(data []byte) error {
	var in documentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	doc := NewCacheDocument()
	doc.FormatVersion = in.FormatVersion
	doc.CatalogVersion = in.CatalogVersion
	if doc.CatalogVersion == "" {
		doc.CatalogVersion = in.GameVersion
	}

	items := in.Items
	if len(items) == 0 {
		items = in.Skins
	}
	for id, rec := range items {
		item := Item{ID: id, DisplayName: rec.Name, IconRef: rec.Icon}
		if rec.Rarity != nil {
			item.RarityID = *rec.Rarity
		}
		doc.Items[id] = item
	}
	for id, rec := range in.Rarities {
		doc.Rarities[id] = RarityTier{ID: id, Name: rec.Name, IconRef: rec.Icon}
	}
	if in.Prices != nil {
		doc.Prices = *in.Prices
	}

	*d = *doc
	return nil
}

// ItemView is an item resolved for display.
type ItemView struct {
	Item
	Rarity *RarityTier `json:"rarity_tier"`
	Price  *int        `json:"price,omitempty"`
}
