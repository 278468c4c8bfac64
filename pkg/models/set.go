package models

import "encoding/json"

// Metadata is the provenance of the loaded snapshot (the `meta` table).
type Metadata struct {
	Date    string `json:"date"`
	Version string `json:"version"`
}

// SetSummary is one row of the `sets` table. The typed fields are the ones the
// catalog filters and indexes on; Attributes keeps every source column.
type SetSummary struct {
	Code         string
	Name         string
	Type         string
	ReleaseDate  string
	Block        *string
	IsOnlineOnly bool
	KeyruneCode  *string

	Attributes Row
}

// SetListing is the short projection served by the set list endpoint.
type SetListing struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	KeyruneCode *string `json:"keyruneCode"`
	ReleaseDate string  `json:"releaseDate"`
	Type        string  `json:"type"`
}

func SetSummaryFromRow(row Row) SetSummary {
	return SetSummary{
		Code:         row.String("code"),
		Name:         row.String("name"),
		Type:         row.String("type"),
		ReleaseDate:  row.String("releaseDate"),
		Block:        row.OptString("block"),
		IsOnlineOnly: row.Bool("isOnlineOnly"),
		KeyruneCode:  row.OptString("keyruneCode"),
		Attributes:   row,
	}
}

func (s SetSummary) Listing() SetListing {
	return SetListing{
		Name:        s.Name,
		Code:        s.Code,
		KeyruneCode: s.KeyruneCode,
		ReleaseDate: s.ReleaseDate,
		Type:        s.Type,
	}
}

// MarshalJSON emits the full source row with the typed fields on top.
func (s SetSummary) MarshalJSON() ([]byte, error) {
	out := s.Attributes.Clone()
	if out == nil {
		out = make(Row, 7)
	}
	out["code"] = s.Code
	out["name"] = s.Name
	out["type"] = s.Type
	out["releaseDate"] = s.ReleaseDate
	out["block"] = s.Block
	out["isOnlineOnly"] = s.IsOnlineOnly
	out["keyruneCode"] = s.KeyruneCode
	return json.Marshal(map[string]any(out))
}
